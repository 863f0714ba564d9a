package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hypermedia-lab/labclient/config"
	"github.com/hypermedia-lab/labclient/logging"
	"github.com/hypermedia-lab/labclient/metrics"
	"github.com/hypermedia-lab/labclient/transport"
	"github.com/hypermedia-lab/labclient/webapi"
)

// commandParams holds the flags shared by every command.
type commandParams struct {
	configPath string
	output     string
	noColor    bool
}

func (p *commandParams) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&p.configPath, "config", "", "configuration file (default ./labctl.yaml if present)")
	fs.StringVarP(&p.output, "output", "o", formatJSON, "output format: json, yaml or text")
	fs.BoolVar(&p.noColor, "no-color", false, "disable colored output")

	fs.String("site", "", "lab server base URL")
	fs.String("api-version", "", "API version to request (default v1)")
	fs.String("api-key", "", "API key")
	fs.String("username", "", "user name, used when no API key is given")
	fs.String("password", "", "password, used when no API key is given")
	fs.Bool("verify-tls", false, "verify the server's TLS certificate")
	fs.Duration("timeout", 0, "per-request timeout")
	fs.Bool("trace", false, "log every request as a curl command")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.Bool("log-json", false, "write logs as JSON")
	fs.String("metrics-listen", "", "address to serve Prometheus metrics on, e.g. :9100")
}

// labClient is what a command needs to talk to the lab.
type labClient struct {
	cfg     *config.Config
	conn    *webapi.Connection
	log     *zap.Logger
	metrics *metrics.Collector
	server  *http.Server
}

func (p *commandParams) connect(ctx context.Context, cmd *cobra.Command) (*labClient, error) {
	cfg, err := config.Load(p.configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	zl, err := logging.NewZap(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, err
	}
	lc := &labClient{cfg: cfg, log: zl}

	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		lc.metrics = metrics.NewCollector(reg)
		lc.server = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := lc.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	client, err := transport.NewHTTPClient(transport.Options{
		Timeout:   cfg.Site.Timeout,
		VerifyTLS: cfg.Site.VerifyTLS,
	})
	if err != nil {
		lc.close()
		return nil, err
	}
	lc.conn, err = webapi.Connect(ctx, webapi.Config{
		SiteURL:      cfg.Site.URL,
		APIVersion:   cfg.Site.APIVersion,
		APIKey:       cfg.Site.APIKey,
		Username:     cfg.Site.Username,
		Password:     cfg.Site.Password,
		HTTPClient:   client,
		Logger:       logging.FromZap(zl),
		Metrics:      lc.metrics,
		Trace:        cfg.Site.Trace,
		PollInterval: cfg.Site.PollInterval,
	})
	if err != nil {
		lc.close()
		return nil, err
	}
	zl.Debug("connected", zap.String("site", cfg.Site.URL), zap.String("apiVersion", cfg.Site.APIVersion))
	return lc, nil
}

func (lc *labClient) close() {
	if lc.server != nil {
		_ = lc.server.Close()
	}
	_ = lc.log.Sync()
}
