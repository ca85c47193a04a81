package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fsmtools/fsm/pkg/backend"
	"github.com/fsmtools/fsm/pkg/cache"
	"github.com/fsmtools/fsm/pkg/config"
	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/graph"
	"github.com/fsmtools/fsm/pkg/journal"
	"github.com/fsmtools/fsm/pkg/pkg"
	"github.com/fsmtools/fsm/pkg/pkgrepo"
	"github.com/fsmtools/fsm/pkg/resolver"
	"github.com/fsmtools/fsm/pkg/state"
)

const defaultConfigFile = "fsm.toml"

// loadConfig loads the config file: the explicit --config path, else
// ./fsm.toml if present, else built-in defaults.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return config.Default(), nil
		}
		path = defaultConfigFile
	}
	return config.Load(path)
}

// env is the wired-up runtime a command operates in: configuration,
// listing cache, a fresh index snapshot, and the installed-set store.
type env struct {
	cfg      config.Config
	cache    cache.Cache
	graph    *graph.Graph
	degraded []string
	priority map[string]int
	store    state.Store
}

// setup loads the config, indexes all configured repositories, and opens
// the state store. Callers must Close the returned env.
func setup(ctx context.Context, configPath string) (*env, error) {
	logger := loggerFromContext(ctx)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	c, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	prog := newProgress(logger)
	sources := make([]pkgrepo.Source, 0, len(cfg.Repositories))
	priority := make(map[string]int, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		var src pkgrepo.Source
		if r.URL != "" {
			src = pkgrepo.NewHTTPSource(r.Name, r.Format, r.URL, r.Priority)
		} else {
			src, err = pkgrepo.NewManifestSource(r.Manifest, r.Priority)
			if err != nil {
				_ = c.Close()
				return nil, err
			}
		}
		priority[src.Name()] = r.Priority
		if cfg.Cache.Type != "" && cfg.Cache.Type != "none" {
			sources = append(sources, pkgrepo.NewCachedSource(src, c, cfg.Cache.TTL.Std()))
		} else {
			sources = append(sources, src)
		}
	}

	res, err := pkgrepo.Index(ctx, sources, pkgrepo.Options{
		Workers:       cfg.Index.Workers,
		SourceTimeout: cfg.Index.SourceTimeout.Std(),
		Logger:        logger.Warnf,
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	prog.done("Indexed " + pluralize(len(sources), "repository", "repositories"))
	for _, name := range res.Degraded {
		logger.Warn("repository degraded, resolution may be incomplete", "repo", name)
	}

	store, err := state.OpenSQLite(cfg.State.Path)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	return &env{
		cfg:      cfg,
		cache:    c,
		graph:    res.Graph,
		degraded: res.Degraded,
		priority: priority,
		store:    store,
	}, nil
}

func (e *env) Close() {
	_ = e.store.Close()
	_ = e.cache.Close()
}

// request assembles a resolver request over the current snapshot.
func (e *env) request(ctx context.Context, ops []pkg.Operation) (resolver.Request, error) {
	installed, err := e.store.Snapshot(ctx)
	if err != nil {
		return resolver.Request{}, err
	}
	return resolver.Request{
		Ops:           ops,
		Installed:     installed,
		RepoPriority:  e.priority,
		DegradedRepos: e.degraded,
	}, nil
}

// backends builds the applier registry. With simulate, every format seen in
// the graph or the installed set gets an in-memory applier seeded from the
// installed set, so plans can be rehearsed without touching the system.
func (e *env) backends(ctx context.Context, simulate bool) (*backend.Registry, error) {
	if simulate {
		installed, err := e.store.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		byFormat := make(map[string]map[pkg.ID]pkg.Version)
		for _, p := range e.graph.Packages() {
			if byFormat[p.ID.Format] == nil {
				byFormat[p.ID.Format] = make(map[pkg.ID]pkg.Version)
			}
		}
		for id, v := range installed {
			if byFormat[id.Format] == nil {
				byFormat[id.Format] = make(map[pkg.ID]pkg.Version)
			}
			byFormat[id.Format][id] = v
		}
		appliers := make([]backend.Applier, 0, len(byFormat))
		for format, seed := range byFormat {
			appliers = append(appliers, backend.NewMemory(format, seed))
		}
		return backend.NewRegistry(appliers...), nil
	}

	appliers := make([]backend.Applier, 0, len(e.cfg.Backends))
	for _, bc := range e.cfg.Backends {
		a, err := backend.NewExec(bc)
		if err != nil {
			return nil, err
		}
		appliers = append(appliers, a)
	}
	if len(appliers) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"no backends configured; add a [backend.<format>] section or use --simulate")
	}
	return backend.NewRegistry(appliers...), nil
}

// recorder opens the configured journal, defaulting to a no-op one.
func (e *env) recorder(ctx context.Context) (journal.Recorder, error) {
	if e.cfg.Journal.URI == "" {
		return journal.Nop{}, nil
	}
	return journal.NewMongo(ctx, e.cfg.Journal)
}

func newCache(ctx context.Context, cfg config.Cache) (cache.Cache, error) {
	switch cfg.Type {
	case "", "none":
		return cache.NewNullCache(), nil
	case "file":
		return cache.NewFileCache(cfg.Dir)
	case "redis":
		return cache.NewRedisCache(ctx, cfg.Addr)
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "unknown cache type %q", cfg.Type)
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return "1 " + singular
	}
	return fmt.Sprintf("%d %s", n, plural)
}
