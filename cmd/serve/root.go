package serve

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "lrpc/cmd/util"
	"lrpc/config"
	"lrpc/logger"
	"lrpc/registry"
	"lrpc/sample/hello"
	"lrpc/server"
)

var (
	serveCmdConfig = config.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start an RPC server exposing the sample HelloService",
		Long: `Start an RPC server that exposes both HelloService implementations (unversioned and "helloServiceImpl2") and publishes them to the registry.
The configuration can be set via command line flags or environment variables. The format of the environment variables is LRPC_<flag> (e.g. LRPC_REGISTRY=etcd)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupCommonFlags(ServeCmd)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "127.0.0.1:8080", cmdUtil.WrapString("The address on which the server will listen"))

	key = "advertise"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address published to the registry (defaults to the listen address, required when listening on a wildcard address)"))

	key = "request-timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Per-request timeout in milliseconds (0 disables)"))

	key = "rate-limit"
	ServeCmd.PersistentFlags().Float64(key, 0, cmdUtil.WrapString("Accepted requests per second (0 disables)"))

	key = "rate-burst"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("Token bucket size of the rate limiter"))

	key = "shutdown-timeout"
	ServeCmd.PersistentFlags().Int64(key, 5000, cmdUtil.WrapString("How long to wait for in-flight requests on shutdown, in milliseconds"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address for the Prometheus /metrics endpoint (empty disables)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (trace, debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	codecType, err := cmdUtil.GetCodec()
	if err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.AdvertiseAddr = viper.GetString("advertise")
	serveCmdConfig.Codec = codecType
	serveCmdConfig.MaxFrameSize = viper.GetInt("max-frame-size")
	serveCmdConfig.RequestTimeout = cmdUtil.GetDuration("request-timeout")
	serveCmdConfig.RateLimit = viper.GetFloat64("rate-limit")
	serveCmdConfig.RateBurst = viper.GetInt("rate-burst")
	serveCmdConfig.ShutdownTimeout = cmdUtil.GetDuration("shutdown-timeout")
	serveCmdConfig.Transport = cmdUtil.GetTCPConf()
	serveCmdConfig.Registry = cmdUtil.GetRegistryConfig()
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.MaxFrameSize <= 0 {
		return fmt.Errorf("invalid max frame size %d", serveCmdConfig.MaxFrameSize)
	}
	return logger.Init(serveCmdConfig.LogLevel)
}

// run starts the server and blocks until SIGINT/SIGTERM
func run(_ *cobra.Command, _ []string) error {
	log := logger.For("serve")
	log.Debugf("configuration:%s", serveCmdConfig.String())

	reg, err := registry.Open(serveCmdConfig.Registry)
	if err != nil {
		return err
	}
	defer reg.Close()

	svr, err := server.NewServer(serveCmdConfig, reg)
	if err != nil {
		return err
	}
	if err := svr.RegisterServices(hello.Services()); err != nil {
		return err
	}

	if addr := viper.GetString("metrics-endpoint"); addr != "" {
		go serveMetrics(addr)
	}

	errc := make(chan error, 1)
	go func() { errc <- svr.ListenAndServe() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errc:
		return err
	case s := <-sig:
		log.Infof("received %s, shutting down", s)
	}

	if err := svr.Shutdown(serveCmdConfig.ShutdownTimeout); err != nil {
		return err
	}
	return <-errc
}

func serveMetrics(addr string) {
	log := logger.For("metrics")
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Infof("metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("metrics endpoint: %v", err)
	}
}
