package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubiojr/timetrip/pkg/api"
	"github.com/rubiojr/timetrip/pkg/config"
	"github.com/rubiojr/timetrip/pkg/explorer"
	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/rubiojr/timetrip/pkg/realtime"
	"github.com/urfave/cli/v3"
)

// ShellCommand creates the shell command
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Serve the explorer state over HTTP and WebSocket for a page shell",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Address to listen on (defaults to shell.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (defaults to shell.port)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return shell(ctx, c.String("config"), c.String("host"), c.Int("port"))
		},
	}
}

func shell(ctx context.Context, configPath, host string, port int) error {
	logger := log.ForService("shell")

	s, err := openSession(configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if host == "" {
		host = s.cfg.Shell.Host
	}
	if port == 0 {
		port = s.cfg.Shell.Port
	}

	if s.cache != nil {
		if n, err := s.cache.PruneSnapshots(ctx, s.cfg.SnapshotMaxAge.Duration); err != nil {
			logger.Warnf("pruning snapshots: %v", err)
		} else if n > 0 {
			logger.Infof("pruned %d snapshots older than %s", n, s.cfg.SnapshotMaxAge)
		}
	}

	shellCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	x, err := s.newExplorer(shellCtx, realtime.NewHub(0))
	if err != nil {
		return err
	}
	defer x.Close()

	server := api.NewServer(x)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.CorsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	x.Start()

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("page shell listening on http://%s (timeline API %s)", addr, s.cfg.APIURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	reloader := &shellReloader{explorer: x, current: s.cfg, logger: logger}

	// Nil channels keep the loop working when the watcher is unavailable.
	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("failed to close config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			logger.Warnf("failed to watch config file %s: %v", configPath, err)
		} else {
			logger.Infof("watching config file for changes: %s", configPath)
			fsEvents, fsErrors = watcher.Events, watcher.Errors
		}
	}

	shutdown := func() error {
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		cancel()
		return httpServer.Shutdown(stopCtx)
	}

	for {
		select {
		case <-ctx.Done():
			return shutdown()
		case err, ok := <-serveErr:
			if ok && err != nil {
				return fmt.Errorf("serving page shell: %w", err)
			}
			return nil
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Infof("received SIGHUP, reloading configuration")
				if err := reloader.reload(configPath); err != nil {
					logger.Errorf("failed to reload configuration: %v", err)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				fmt.Println("\nShutting down...")
				return shutdown()
			}
		case event, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)) {
				continue
			}
			logger.Debugf("config file changed: %s (%s)", event.Name, event.Op)

			// Editors replace files atomically, which drops the watch.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("config file was removed, keeping the current settings")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					logger.Warnf("failed to re-add config file to watcher: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			if err := reloader.reload(configPath); err != nil {
				logger.Errorf("failed to reload configuration after file change: %v", err)
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			logger.Warnf("config file watcher error: %v", err)
		}
	}
}

// shellReloader applies the settings that can change while the shell runs.
// Everything else needs a restart and is only reported.
type shellReloader struct {
	explorer *explorer.Explorer
	logger   *log.Logger

	mu      sync.Mutex
	current *config.Config
}

func (r *shellReloader) reload(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading new config: %w", err)
	}
	r.apply(cfg)
	return nil
}

func (r *shellReloader) apply(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.current

	if cfg.Crossfade.ReducedMotion != old.Crossfade.ReducedMotion {
		r.explorer.Crossfade.SetReducedMotion(cfg.Crossfade.ReducedMotion)
		r.logger.Infof("reduced motion %t", cfg.Crossfade.ReducedMotion)
	}
	if cfg.Crossfade.Duration != old.Crossfade.Duration {
		r.explorer.Crossfade.SetDuration(cfg.Crossfade.Duration.Duration)
		r.logger.Infof("crossfade duration %s", cfg.Crossfade.Duration)
	}
	if cfg.Highlight.SettleDelay != old.Highlight.SettleDelay {
		r.explorer.Locator.SetSettleDelay(cfg.Highlight.SettleDelay.Duration)
		r.logger.Infof("highlight settle delay %s", cfg.Highlight.SettleDelay)
	}

	restart := map[string]bool{
		"api_url":                cfg.APIURL != old.APIURL,
		"storage_dir":            cfg.StorageDir != old.StorageDir,
		"eras_file":              cfg.ErasFile != old.ErasFile,
		"clusters.grace":         cfg.Clusters.Grace != old.Clusters.Grace,
		"spatial.default_radius": cfg.Spatial.DefaultRadius != old.Spatial.DefaultRadius,
		"shell":                  cfg.Shell != old.Shell,
	}
	for key, changed := range restart {
		if changed {
			r.logger.Warnf("%s changed, restart the shell to apply it", key)
		}
	}
	r.current = cfg
}
