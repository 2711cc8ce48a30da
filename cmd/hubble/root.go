package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/homemade/hubble/logging"
	"github.com/homemade/hubble/protocol"
	"github.com/homemade/hubble/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPaths     []string
	compositeEnvVar string
	statePath       string
	concurrency     int
	logLevel        string
	logFormat       string
	metricsAddr     string
	recordRequests  bool

	logger  *zap.Logger
	emitter *protocol.Emitter
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:           "hubble",
	Short:         "Incremental reader for Hubble API collections",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		l, err := logging.New(logging.WithLogLevel(logLevel), logging.WithLogFormat(logFormat))
		if err != nil {
			return fmt.Errorf("failed to create logger %w", err)
		}
		logger = l
		emitter = protocol.NewEmitter(os.Stdout)
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	RootCmd.PersistentFlags().StringSliceVar(&configPaths, "config", nil, "config file, may be repeated; later files override earlier ones")
	RootCmd.PersistentFlags().StringVar(&compositeEnvVar, "env-var", "", "env var holding a JSON object of secrets for ${KEY} expansion")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.LogFormatJSON, "log format: json or console")
	RootCmd.PersistentFlags().BoolVar(&recordRequests, "record-requests", false, "record HTTP exchanges under "+sync.RecordRequestsDir)
	_ = RootCmd.MarkPersistentFlagRequired("config")

	RootCmd.AddCommand(checkCmd, discoverCmd, readCmd)
}

// syncContext loads the config and assembles what every stream shares.
func syncContext(observers ...sync.Observer) (sync.SyncContext, error) {
	var result sync.SyncContext
	var opts []sync.ConfigOption
	if compositeEnvVar != "" {
		opts = append(opts, sync.ConfigWithCompositeEnvVar(compositeEnvVar))
	}
	cfg, err := sync.LoadConfig(configPaths, opts...)
	if err != nil {
		return result, err
	}
	result.Config = cfg
	result.Logger = logger
	result.RecordRequests = recordRequests
	result.Observer = append(sync.Observers{sync.LogObserver{Logger: logger}}, observers...)
	return result, nil
}

// serveMetrics exposes the observer's counters on metricsAddr, if set.
func serveMetrics() sync.Observer {
	reg := prometheus.NewRegistry()
	observer := sync.NewMetricsObserver(reg)
	if metricsAddr == "" {
		return observer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return observer
}
