// Package fetcher fetches and parses marketplace search result pages.
package fetcher

import (
	"context"
	"time"

	"github.com/sells-group/hwvalue/internal/config"
	"github.com/sells-group/hwvalue/internal/model"
	"github.com/sells-group/hwvalue/internal/resilience"
)

// PageSource returns one parsed page of results for a search term.
type PageSource interface {
	Fetch(ctx context.Context, term string, page int) (*model.Page, error)
}

// Options configures a Client.
type Options struct {
	BaseURL         string
	ConnectivityURL string
	Timeout         time.Duration
	UserAgents      []string
	Retry           resilience.RetryConfig
	Breaker         resilience.CircuitBreakerConfig
	Tor             TorOptions
}

// TorOptions configures routing through a local Tor daemon.
type TorOptions struct {
	Enabled         bool
	ProxyURL        string
	ControlAddr     string
	ControlPassword string
	RenewEvery      int
	RenewWait       time.Duration
}

// OptionsFromConfig maps application settings onto client options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:         cfg.Ingest.BaseURL,
		ConnectivityURL: cfg.Ingest.ConnectivityURL,
		Timeout:         time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		UserAgents:      cfg.Fetch.UserAgents,
		Retry: resilience.RetryFromSettings(
			cfg.Fetch.MaxAttempts,
			cfg.Fetch.InitialBackoffMs,
			cfg.Fetch.MaxBackoffMs,
			cfg.Fetch.Multiplier,
			cfg.Fetch.Jitter,
		),
		Breaker: resilience.CircuitFromSettings(cfg.Fetch.BreakerThreshold, cfg.Fetch.BreakerResetSecs),
		Tor: TorOptions{
			Enabled:         cfg.Tor.Enabled,
			ProxyURL:        cfg.Tor.ProxyURL,
			ControlAddr:     cfg.Tor.ControlAddr,
			ControlPassword: cfg.Tor.ControlPassword,
			RenewEvery:      cfg.Tor.RenewEvery,
			RenewWait:       time.Duration(cfg.Tor.RenewWaitMs) * time.Millisecond,
		},
	}
}
