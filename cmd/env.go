package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compete-cli/internal/discovery"
	"github.com/sells-group/compete-cli/internal/extract"
	"github.com/sells-group/compete-cli/internal/monitor"
	"github.com/sells-group/compete-cli/internal/research"
	"github.com/sells-group/compete-cli/internal/scrape"
	"github.com/sells-group/compete-cli/internal/store"
	"github.com/sells-group/compete-cli/pkg/anthropic"
	"github.com/sells-group/compete-cli/pkg/firecrawl"
	"github.com/sells-group/compete-cli/pkg/tavily"
)

// appEnv bundles the wired collaborators a command needs.
type appEnv struct {
	Store        store.Store
	Orchestrator *discovery.Orchestrator
	Monitor      *monitor.Service
	Research     *research.Pipeline
}

// Close releases held resources.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "compete.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv wires the full stack from configuration. Missing API keys degrade:
// a nil search client skips competitor URL validation, and an unkeyed LLM
// yields empty profiles with notes instead of errors.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	llmClient := anthropic.NewCompleter(cfg.Anthropic.Key, cfg.Anthropic.Model)

	var search tavily.Client
	if cfg.Tavily.Key != "" {
		search = tavily.NewClient(cfg.Tavily.Key, tavily.WithBaseURL(cfg.Tavily.BaseURL))
	}

	fc := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	scraper := scrape.New(fc, cfg.Scrape.CacheTTL())
	pipeline := research.New(search, scraper, extract.New(llmClient))

	orch := discovery.New(llmClient, search, pipeline, discovery.NewSynthesizer(llmClient), discovery.Config{
		BaseTimeout:       cfg.Discovery.BaseTimeout(),
		CompetitorTimeout: cfg.Discovery.CompetitorTimeout(),
		Concurrency:       cfg.Discovery.Concurrency,
		MaxCompetitors:    cfg.Discovery.MaxCompetitors,
	})

	return &appEnv{
		Store:        st,
		Orchestrator: orch,
		Monitor:      monitor.New(st, orch),
		Research:     pipeline,
	}, nil
}
