// Package config loads fsm's TOML configuration.
//
// A minimal configuration lists repositories; everything else has working
// defaults (file-backed state next to the config, no cache, no journal).
//
//	[[repository]]
//	manifest = "/srv/repos/core/repo.yaml"
//	priority = 10
//
//	[cache]
//	type = "file"
//	dir  = "/var/cache/fsm"
//
//	[backend.rpm]
//	install = ["dnf", "install", "-y", "{name}-{version}"]
//	remove  = ["dnf", "remove", "-y", "{name}"]
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fsmtools/fsm/pkg/backend"
	"github.com/fsmtools/fsm/pkg/errors"
	"github.com/fsmtools/fsm/pkg/journal"
)

// Duration is a time.Duration that unmarshals from TOML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Repository configures one package source: either a local manifest path or
// a remote base URL. Remote repositories also need the name and format the
// manifest is expected to declare.
type Repository struct {
	// Manifest is the path to a local YAML manifest.
	Manifest string `toml:"manifest"`
	// URL is the base URL of a remote repository.
	URL    string `toml:"url"`
	Name   string `toml:"name"`
	Format string `toml:"format"`
	// Priority breaks provider ties between repositories; higher wins.
	Priority int `toml:"priority"`
}

// Cache configures listing caching. Type is "none", "file" or "redis".
type Cache struct {
	Type string   `toml:"type"`
	Dir  string   `toml:"dir"`  // file cache directory
	Addr string   `toml:"addr"` // redis address
	TTL  Duration `toml:"ttl"`  // listing freshness window
}

// State configures the installed-set store. Path ":memory:" keeps state
// in-process.
type State struct {
	Path string `toml:"path"`
}

// Index tunes repository indexing.
type Index struct {
	Workers       int      `toml:"workers"`
	SourceTimeout Duration `toml:"source_timeout"`
}

// Config is the root configuration.
type Config struct {
	Repositories []Repository                  `toml:"repository"`
	Cache        Cache                         `toml:"cache"`
	State        State                         `toml:"state"`
	Journal      journal.MongoConfig           `toml:"journal"`
	Index        Index                         `toml:"index"`
	Backends     map[string]backend.ExecConfig `toml:"backend"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Cache: Cache{Type: "none", TTL: Duration(15 * time.Minute)},
		State: State{Path: "fsm-state.db"},
	}
}

// Load reads and validates a configuration file, filling defaults for
// anything unset.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidInput, err,
			"loading config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.New(errors.ErrCodeInvalidInput,
			"config %s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	for i, r := range c.Repositories {
		switch {
		case r.Manifest == "" && r.URL == "":
			return errors.New(errors.ErrCodeInvalidInput,
				"repository %d: manifest path or url required", i)
		case r.Manifest != "" && r.URL != "":
			return errors.New(errors.ErrCodeInvalidInput,
				"repository %d: manifest and url are mutually exclusive", i)
		case r.URL != "" && (r.Name == "" || r.Format == ""):
			return errors.New(errors.ErrCodeInvalidInput,
				"repository %d: remote repositories need name and format", i)
		}
	}
	switch c.Cache.Type {
	case "", "none":
	case "file":
		if c.Cache.Dir == "" {
			return errors.New(errors.ErrCodeInvalidInput, "file cache needs a dir")
		}
	case "redis":
		if c.Cache.Addr == "" {
			return errors.New(errors.ErrCodeInvalidInput, "redis cache needs an addr")
		}
	default:
		return errors.New(errors.ErrCodeInvalidInput,
			"unknown cache type %q", c.Cache.Type)
	}
	for format, b := range c.Backends {
		if b.Format == "" {
			b.Format = format
			c.Backends[format] = b
		} else if b.Format != format {
			return errors.New(errors.ErrCodeInvalidInput,
				"backend %q declares mismatched format %q", format, b.Format)
		}
	}
	return nil
}
