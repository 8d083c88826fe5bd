package cmd

import (
	"github.com/refreshrelay/refreshrelay/internal/config"
	"github.com/refreshrelay/refreshrelay/internal/core/engine"
	"github.com/refreshrelay/refreshrelay/internal/core/fetch"
	"github.com/refreshrelay/refreshrelay/internal/core/policy"
	"github.com/refreshrelay/refreshrelay/internal/core/refresh"
	"github.com/refreshrelay/refreshrelay/internal/server/handlers"
)

// buildRelayOptions wires fetcher, rate limiter, resolver and policy from cfg.
// Each call starts with fresh rate limit windows.
func buildRelayOptions(cfg *config.Config) handlers.RelayOptions {
	fetcher := fetch.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.MaxRedirects, cfg.Fetch.UserAgent)
	limiter := engine.NewRateLimiter(cfg.RateLimitMap(), cfg.RateLimitMargin)

	return handlers.RelayOptions{
		Policy: policy.Policy{
			AllowedPrefixes: cfg.Relay.AllowedPrefixes,
			RequireHTTPS:    cfg.Relay.RequireHTTPS,
			BlockPrivate:    cfg.Relay.BlockPrivate,
		},
		Resolver: &refresh.Resolver{
			Fetcher:     &engine.LimitedFetcher{Fetcher: fetcher, Limiter: limiter},
			PrefixLimit: cfg.Relay.PrefixLimit,
		},
		RedirectStatus: cfg.Relay.RedirectStatus,
	}
}
