package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rubiojr/timetrip/pkg/client"
	"github.com/rubiojr/timetrip/pkg/config"
	"github.com/rubiojr/timetrip/pkg/era"
	"github.com/rubiojr/timetrip/pkg/explorer"
	"github.com/rubiojr/timetrip/pkg/realtime"
	"github.com/rubiojr/timetrip/pkg/storage"
)

// session bundles what most commands need: the loaded configuration, an API
// client and the event cache of that API.
type session struct {
	cfg     *config.Config
	client  *client.Client
	storage *storage.Manager
	cache   *storage.EventCache
}

// openSession loads the configuration at configPath and connects the API
// client and its cache. A cache that cannot be opened is reported and left
// nil so online commands keep working.
func openSession(configPath string) (*session, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, client: c, storage: storage.NewManager(cfg.StorageDir)}
	cache, err := s.storage.GetCache(cfg.APIURL)
	if err != nil {
		fmt.Printf("Warning: event cache unavailable: %v\n", err)
	} else {
		s.cache = cache
	}
	return s, nil
}

func (s *session) Close() {
	if err := s.storage.Close(); err != nil {
		fmt.Printf("Warning: failed to close storage manager: %v\n", err)
	}
}

// newClient builds an API client honouring the configured timeouts.
func newClient(cfg *config.Config) (*client.Client, error) {
	c, err := client.New(cfg.APIURL, &http.Client{Timeout: cfg.RequestTimeout.Duration})
	if err != nil {
		return nil, fmt.Errorf("creating API client: %w", err)
	}
	c.SetListTimeout(cfg.ListTimeout.Duration)
	return c, nil
}

// loadEras returns the configured era table, or the built-in one.
func loadEras(cfg *config.Config) (era.Table, error) {
	if cfg.ErasFile == "" {
		return era.Default(), nil
	}
	t, err := era.LoadFile(cfg.ErasFile)
	if err != nil {
		return nil, fmt.Errorf("loading eras from %s: %w", cfg.ErasFile, err)
	}
	return t, nil
}

// explorerOptions maps the configuration onto session options.
func explorerOptions(cfg *config.Config, eras era.Table) explorer.Options {
	return explorer.Options{
		Eras:              eras,
		StartYear:         cfg.DefaultStartYear,
		EndYear:           cfg.DefaultEndYear,
		CrossfadeDuration: cfg.Crossfade.Duration.Duration,
		ReducedMotion:     cfg.Crossfade.ReducedMotion,
		ClusterGrace:      cfg.Clusters.Grace.Duration,
		SettleDelay:       cfg.Highlight.SettleDelay.Duration,
		SpatialRadius:     cfg.Spatial.DefaultRadius,
	}
}

// newExplorer wires an explorer session over the session's client and cache.
func (s *session) newExplorer(ctx context.Context, hub *realtime.Hub) (*explorer.Explorer, error) {
	eras, err := loadEras(s.cfg)
	if err != nil {
		return nil, err
	}
	opts := explorerOptions(s.cfg, eras)
	opts.Hub = hub
	opts.Context = ctx
	return explorer.New(explorer.NewCachedFetcher(s.client, s.cache), opts), nil
}
