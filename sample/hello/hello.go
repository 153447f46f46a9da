// Package hello is the sample service: one API interface, two implementations published under
// different versions of the same interface name, and a typed client stub.
package hello

import (
	"context"

	"lrpc/client"
	"lrpc/server"
)

// Version2 is the version HelloServiceImpl2 is published under.
const Version2 = "helloServiceImpl2"

type HelloService interface {
	Hello(ctx context.Context, name string) (string, error)
}

// HelloServiceImpl1 is published without a version.
type HelloServiceImpl1 struct{}

func (HelloServiceImpl1) Hello(ctx context.Context, name string) (string, error) {
	return "Hello!" + name, nil
}

// HelloServiceImpl2 is published under Version2.
type HelloServiceImpl2 struct{}

func (HelloServiceImpl2) Hello(ctx context.Context, name string) (string, error) {
	return "Hello!" + name + ", I am helloServiceImpl2", nil
}

// Services lists both implementations for server.RegisterServices.
func Services() []server.Exposed {
	return []server.Exposed{
		server.Expose[HelloService](HelloServiceImpl1{}, ""),
		server.Expose[HelloService](HelloServiceImpl2{}, Version2),
	}
}

// HelloClient implements HelloService by calling a remote instance.
type HelloClient struct {
	stub *client.Stub
}

var _ HelloService = (*HelloClient)(nil)

// NewHelloClient returns a HelloService backed by the instance published under version.
func NewHelloClient(p *client.Proxy, version string) *HelloClient {
	return &HelloClient{stub: client.ServiceOf[HelloService](p, version)}
}

func (c *HelloClient) Hello(ctx context.Context, name string) (string, error) {
	return client.Invoke[string](ctx, c.stub, "Hello", name)
}
