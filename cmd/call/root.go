package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lrpc/client"
	cmdUtil "lrpc/cmd/util"
	"lrpc/codec"
	"lrpc/config"
	"lrpc/logger"
	"lrpc/sample/hello"
)

var (
	callCmdConfig = config.DefaultClientConfig()
	CallCmd       = &cobra.Command{
		Use:   "call [method] [string args...]",
		Short: "Call a remote method",
		Long: `Call a method of a remote service and print the result. All arguments are sent as strings.
Without --interface the sample HelloService is called, e.g. "lrpc call Hello World --address 127.0.0.1:8080 --version helloServiceImpl2".
The target is either a fixed --address or a service discovered through --registry etcd; the memory registry only lives inside one process, so it cannot be used here.
The format of the environment variables is LRPC_<flag> (e.g. LRPC_ADDRESS=127.0.0.1:8080)`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupCommonFlags(CallCmd)

	key := "address"
	CallCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Call this address directly instead of discovering one"))

	key = "balancer"
	CallCmd.PersistentFlags().String(key, "random", cmdUtil.WrapString("How to pick among several instances (random, roundrobin, weighted)"))

	key = "interface"
	CallCmd.PersistentFlags().String(key, codec.NameOf[hello.HelloService](), cmdUtil.WrapString("Interface name of the service"))

	key = "version"
	CallCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Version of the service (empty for unversioned)"))

	key = "timeout"
	CallCmd.PersistentFlags().Int64(key, 10000, cmdUtil.WrapString("The timeout in milliseconds of the call"))

	key = "log-level"
	CallCmd.PersistentFlags().String(key, "warn", cmdUtil.WrapString("LogLevel is the level at which logs will be output (trace, debug, info, warn, error)"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	codecType, err := cmdUtil.GetCodec()
	if err != nil {
		return err
	}

	callCmdConfig.Address = viper.GetString("address")
	callCmdConfig.Balancer = viper.GetString("balancer")
	callCmdConfig.Codec = codecType
	callCmdConfig.MaxFrameSize = viper.GetInt("max-frame-size")
	callCmdConfig.CallTimeout = cmdUtil.GetDuration("timeout")
	callCmdConfig.Transport = cmdUtil.GetTCPConf()
	callCmdConfig.Registry = cmdUtil.GetRegistryConfig()

	if err := checkTarget(callCmdConfig); err != nil {
		return err
	}
	return logger.Init(viper.GetString("log-level"))
}

// checkTarget rejects configurations that can never resolve a service from a separate process.
func checkTarget(conf config.ClientConfig) error {
	if conf.Address != "" {
		return nil
	}
	switch conf.Registry.Type {
	case config.RegistryEtcd:
		return nil
	case "", config.RegistryMemory:
		return errors.New("no target: set --address, or --registry etcd with --registry-endpoints")
	default:
		return fmt.Errorf("unknown registry type %q", conf.Registry.Type)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger.For("call").Debugf("configuration:%s", callCmdConfig.String())

	p, err := client.Open(callCmdConfig)
	if err != nil {
		return err
	}
	defer p.Close()

	params := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		params = append(params, a)
	}

	stub := p.Service(viper.GetString("interface"), viper.GetString("version"))
	start := time.Now()
	res, err := stub.Call(context.Background(), args[0], params...)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res)
	logger.For("call").Debugf("took %s", time.Since(start))
	return nil
}
