package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hwvalue/internal/catalog"
	"github.com/sells-group/hwvalue/internal/config"
	"github.com/sells-group/hwvalue/internal/fetcher"
	"github.com/sells-group/hwvalue/internal/filter"
	"github.com/sells-group/hwvalue/internal/pipeline"
	"github.com/sells-group/hwvalue/internal/resolver"
	"github.com/sells-group/hwvalue/internal/store"
	"github.com/sells-group/hwvalue/internal/value"
)

// initStore opens the configured backend and applies the schema.
func initStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if cfg.Store.Driver == "sqlite" && dsn == "" {
		dsn = "hwvalue.db"
	}
	st, err := store.Open(ctx, cfg.Store.Driver, dsn, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initCatalog() (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load catalog")
	}
	return cat, nil
}

func filterConfig(c config.FilterConfig) filter.Config {
	return filter.Config{
		Warmup:      c.Warmup,
		LowFactor:   c.LowFactor,
		HighFactor:  c.HighFactor,
		Floor:       c.Floor,
		MinTitleLen: c.MinTitleLen,
	}
}

// newClient builds the fetch client with the process-wide limiter.
func newClient() (*fetcher.Client, error) {
	client, err := fetcher.NewClient(fetcher.OptionsFromConfig(cfg), fetcher.NewLimiter(cfg.Fetch.RPM))
	if err != nil {
		return nil, eris.Wrap(err, "init fetch client")
	}
	return client, nil
}

// pipelineEnv holds the initialized dependencies of an ingestion cycle.
type pipelineEnv struct {
	Store    store.Store
	Client   *fetcher.Client
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *pipelineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cat, err := initCatalog()
	if err != nil {
		return nil, err
	}
	res, err := resolver.New(cat)
	if err != nil {
		return nil, eris.Wrap(err, "init resolver")
	}

	client, err := newClient()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(
		pipeline.OptionsFromConfig(cfg),
		client,
		st,
		res,
		filter.New(filterConfig(cfg.Filter), cat),
		value.NewEngine(cat),
	)
	return &pipelineEnv{Store: st, Client: client, Pipeline: p}, nil
}
