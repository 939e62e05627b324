package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/audionode/cmd"
	"github.com/smazurov/audionode/internal/api"
	"github.com/smazurov/audionode/internal/config"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/metrics/exporters"
	"github.com/smazurov/audionode/internal/streams"
	"github.com/smazurov/audionode/internal/streams/store"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Origin allowed to call the API from a browser (empty allows any)" default:"" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Backend settings
	Backend           string        `help:"Hardware backend (auto, alsa, malgo, sim)" default:"auto" toml:"backend.name" env:"BACKEND"`
	ALSADefaultOutput string        `help:"Default ALSA output device (hw:C,D)" default:"" toml:"alsa.default_output" env:"ALSA_DEFAULT_OUTPUT"`
	ALSADefaultInput  string        `help:"Default ALSA input device (hw:C,D)" default:"" toml:"alsa.default_input" env:"ALSA_DEFAULT_INPUT"`
	ALSAProbeTTL      time.Duration `help:"How long a busy device reuses its last capability probe" default:"30s" toml:"alsa.probe_ttl" env:"ALSA_PROBE_TTL"`
	MalgoPollInterval time.Duration `help:"Device list poll interval for the malgo backend" default:"2s" toml:"malgo.poll_interval" env:"MALGO_POLL_INTERVAL"`
	WavPath           string        `help:"Render stream output into this WAV file instead of the device clock" default:"" toml:"backend.wav_path" env:"WAV_PATH"`

	// Streams settings
	StreamsConfigFile string `help:"Stream definitions file" default:"streams.toml" toml:"streams.config_file" env:"STREAMS_CONFIG_FILE"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingHAL     string `help:"Hardware service logging level" default:"info" toml:"logging.hal" env:"LOGGING_HAL"`
	LoggingDevices string `help:"Device registry logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingBackend string `help:"Backend context and stream logging level" default:"info" toml:"logging.backend" env:"LOGGING_BACKEND"`
	LoggingStreams string `help:"Stream definitions logging level" default:"info" toml:"logging.streams" env:"LOGGING_STREAMS"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

// server holds what OnStart opened so OnStop can close it.
type server struct {
	mu      sync.Mutex
	backend *cmd.Backend
	streams *streams.Service
	api     *api.Server
}

func (s *server) set(b *cmd.Backend, svc *streams.Service, srv *api.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend, s.streams, s.api = b, svc, srv
}

func (s *server) get() (*cmd.Backend, *streams.Service, *api.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend, s.streams, s.api
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		loggingConfig := logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"hal":     opts.LoggingHAL,
				"devices": opts.LoggingDevices,
				"backend": opts.LoggingBackend,
				"streams": opts.LoggingStreams,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingHTTP,
				"config":  opts.LoggingConfig,
			},
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.LogEntryEvent(entry))
		})

		backendOpts := cmd.BackendOptions{
			Name:              opts.Backend,
			ALSADefaultOutput: opts.ALSADefaultOutput,
			ALSADefaultInput:  opts.ALSADefaultInput,
			ALSAProbeTTL:      opts.ALSAProbeTTL,
			MalgoPollInterval: opts.MalgoPollInterval,
			WavPath:           opts.WavPath,
		}
		sseExporter := exporters.NewSSEExporter(eventBus)

		// Log levels and ALSA defaults follow the config file at runtime;
		// env and flag values stay in force across reloads.
		watcher := config.NewConfigWatcher(opts.Config, config.RuntimeLoader(opts, cli.Root()), logging.GetLogger("config"),
			config.WithErrorHandler[config.Runtime](func(err error) {
				logger.Warn("Config reload failed", "error", err)
			}),
		)

		// The callback also runs before subcommands, so hardware is only
		// opened once the server starts.
		var app server

		hooks.OnStart(func() {
			b, err := cmd.OpenBackend(backendOpts, eventBus)
			if err != nil {
				logger.Error("Failed to open audio backend", "error", err)
				os.Exit(1)
			}

			// Stream definitions are loaded once at startup; runtime changes
			// go through the API.
			streamService := streams.NewService(b.Context, store.NewTOML(opts.StreamsConfigFile))
			if loadErr := streamService.LoadStreamsFromConfig(context.Background()); loadErr != nil {
				logger.Warn("Failed to load some streams from config", "error", loadErr)
			}

			apiServer := api.NewServer(&api.Options{
				AuthUsername:      opts.AuthUsername,
				AuthPassword:      opts.AuthPassword,
				Backend:           b.Context,
				Streams:           streamService,
				EventBus:          eventBus,
				PrometheusHandler: exporters.HTTPHandler(),
				CORSOrigin:        opts.CORSOrigin,
			})
			app.set(b, streamService, apiServer)

			watcher.OnReload(func(rt config.Runtime) {
				if changed := logging.SetLevels(rt.Logging); len(changed) > 0 {
					logger.Info("Log levels reloaded", "modules", changed)
				}
				if b.ALSA != nil {
					if err := b.ALSA.SetDefaults(rt.ALSA.DefaultOutput, rt.ALSA.DefaultInput); err != nil {
						logger.Warn("Failed to apply ALSA defaults", "error", err)
					}
				}
			})
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Config file is not watched", "path", opts.Config, "error", startErr)
			}
			sseExporter.Start(context.Background())

			logger.Info("Starting HTTP server", "port", opts.Port, "backend", b.Context.BackendID())
			if startErr := apiServer.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			b, streamService, apiServer := app.get()
			if apiServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if stopErr := apiServer.Stop(ctx); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
			}

			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}
			sseExporter.Stop()

			// Streams go before the context so their listeners come off the
			// hardware service first.
			if streamService != nil {
				streamService.Close()
			}
			if b != nil {
				if closeErr := b.Close(); closeErr != nil {
					logger.Error("Error closing audio backend", "error", closeErr)
				}
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateLayoutCmd())
	cli.Root().AddCommand(cmd.CreateWatchCmd())
	cli.Root().AddCommand(cmd.CreateToneCmd())

	// Run the CLI
	cli.Run()
}
