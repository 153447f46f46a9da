package main

import "lrpc/cmd"

func main() {
	cmd.Execute()
}
