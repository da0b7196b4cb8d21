package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/StrathCole/btc-pricefeed/pkg/client"
	"github.com/StrathCole/btc-pricefeed/pkg/config"
	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/metrics"
	"github.com/StrathCole/btc-pricefeed/pkg/server/aggregator"
	"github.com/StrathCole/btc-pricefeed/pkg/server/api"
	"github.com/StrathCole/btc-pricefeed/pkg/server/feed"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources/fiat"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources/websocket"
	"github.com/StrathCole/btc-pricefeed/pkg/version"
)

const defaultConfigFile = "config/config.yaml"

var (
	configFile = flag.String("config", defaultConfigFile, "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
	once       = flag.Bool("once", false, "Aggregate once, print the result as JSON and exit")
	remote     = flag.String("remote", "", "Query a running server at this base URL and print the result")
	currency   = flag.String("currency", "", "Also print the price in this currency (-once and -remote); USD adds nothing")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("btc-pricefeed version %s\n", version.Version)
		os.Exit(0)
	}

	if *remote != "" {
		if err := runRemote(*remote, *currency); err != nil {
			fmt.Fprintf(os.Stderr, "Remote query failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	convert := false
	if *once {
		if convert, err = applyCurrency(cfg, *currency); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -currency: %v\n", err)
			os.Exit(1)
		}
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if *once {
		if err := runOnce(cfg, convert, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Aggregation failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("Starting btc-pricefeed", "version", version.Version)

	if err := runServer(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// loadConfig reads -config; a missing default file falls back to built-in defaults.
func loadConfig() (*config.Config, error) {
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	if _, err := os.Stat(*configFile); !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(*configFile)
}

func newUpstreamClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

// buildFeed wires configured sources and the aggregation policy into a feed.
// Stream sources are connected for the lifetime of ctx.
func buildFeed(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *logging.Logger) (*feed.Feed, error) {
	resolved, err := cfg.PriceSources()
	if err != nil {
		return nil, err
	}

	srcs := make([]sources.Source, 0, len(resolved))
	for _, rs := range resolved {
		if rs.Stream != nil {
			stream, err := websocket.NewStreamSource(*rs.Stream, logger)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", rs.Name(), err)
			}
			stream.Start(ctx)
			logger.Info("Initialized stream source", "source", rs.Name(), "url", rs.Stream.URL, "max_age", stream.Config().MaxAge)
			srcs = append(srcs, stream)
			continue
		}

		src, err := sources.NewHTTPSource(*rs.HTTP, httpClient, logger)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", rs.Name(), err)
		}
		logger.Info("Initialized source", "source", rs.Name(), "url", rs.HTTP.URL, "timeout", rs.HTTP.Timeout)
		srcs = append(srcs, src)
	}

	agg, err := aggregator.NewAggregator(cfg.Feed.Policy, logger)
	if err != nil {
		return nil, err
	}

	return feed.New(cfg.FeedOptions(), srcs, agg, logger)
}

// applyCurrency points the FX settings at currency for -once and reports
// whether a conversion is needed. Call config.Validate afterwards.
func applyCurrency(cfg *config.Config, currency string) (bool, error) {
	if currency == "" {
		return false, nil
	}
	c, err := fiat.NormalizeCurrency(currency)
	if err != nil {
		return false, err
	}
	if c == fiat.BaseCurrency {
		return false, nil
	}

	configured, _ := fiat.NormalizeCurrency(cfg.FX.Currency)
	if configured != c {
		// A configured fallback is quoted in the old currency.
		cfg.FX.Fallback = ""
	}
	cfg.FX.Enabled = true
	cfg.FX.Currency = c
	return true, nil
}

// buildConverter returns nil when FX conversion is disabled or targets USD.
func buildConverter(cfg *config.Config, httpClient *http.Client, logger *logging.Logger) (*fiat.Converter, error) {
	if !cfg.FX.Enabled {
		return nil, nil
	}
	if c, err := fiat.NormalizeCurrency(cfg.FX.Currency); err == nil && c == fiat.BaseCurrency {
		return nil, nil
	}
	fxCfg, err := cfg.FXOptions()
	if err != nil {
		return nil, err
	}
	return fiat.NewConverter(fxCfg, httpClient, logger)
}

func runOnce(cfg *config.Config, convert bool, logger *logging.Logger) error {
	httpClient := newUpstreamClient()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout.ToDuration())
	defer cancel()

	f, err := buildFeed(ctx, cfg, httpClient, logger)
	if err != nil {
		return err
	}

	result := f.GetPrice(ctx)
	resp := api.PriceResponse{Result: result, Available: result.Available()}

	if convert {
		conv, err := buildConverter(cfg, httpClient, logger)
		if err != nil {
			return err
		}
		if conv == nil {
			return printJSON(resp)
		}
		rate := conv.Rate(ctx)
		resp.Converted = &api.ConvertedPrice{
			Currency: conv.Currency(),
			Price:    fiat.Convert(result, rate),
			Rate:     rate,
		}
	}

	return printJSON(resp)
}

func runRemote(baseURL, currency string) error {
	c, err := client.NewHTTPClient(baseURL, 30*time.Second)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := c.GetPrice(ctx, currency)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServer(cfg *config.Config, logger *logging.Logger) error {
	httpClient := newUpstreamClient()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f, err := buildFeed(ctx, cfg, httpClient, logger)
	if err != nil {
		return err
	}

	conv, err := buildConverter(cfg, httpClient, logger)
	if err != nil {
		return err
	}

	errChan := make(chan error, 3)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.Init()
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path)
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var wsServer *api.WebSocketServer
	if cfg.Server.WebSocket.Enabled {
		wsServer = api.NewWebSocketServer(cfg.Server.WebSocket.Addr, f.Config().Symbol, logger)
		f.OnUpdate(wsServer.SendUpdate)
		go func() {
			if err := wsServer.Start(ctx); err != nil {
				errChan <- fmt.Errorf("websocket server: %w", err)
			}
		}()
	}

	var rates api.RateProvider
	if conv != nil {
		rates = conv
	}
	httpServer := api.NewServer(cfg.Server.HTTP.Addr, f, rates, cfg.Server.RequestTimeout.ToDuration(), logger)
	if cfg.Server.HTTP.TLS.Enabled {
		httpServer.SetTLS(cfg.Server.HTTP.TLS.Cert, cfg.Server.HTTP.TLS.Key)
	}
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-errChan:
		logger.Error("Component failed", "error", runErr)
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", "error", err)
	}
	if wsServer != nil {
		wsServer.Stop()
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}

	return runErr
}
