package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("remoteplay v%s\n", version)
	fmt.Println("Video playback shell with a LAN HTTP remote")
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("remoteplay", flag.ContinueOnError)
	fs.Usage = func() {
		printVersion()
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "USAGE:")
		fmt.Fprintln(fs.Output(), "  remoteplay [OPTIONS] [FILE...]")
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Files given on the command line replace the playlist and start playing.")
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "OPTIONS:")
		fs.PrintDefaults()
	}

	var (
		configPath  = fs.String("config", "", "Path to YAML config file")
		showVersion = fs.Bool("version", false, "Print version and exit")

		httpAddr       = fs.String("addr", "", "HTTP listen address (default \":3000\")")
		mediaDir       = fs.String("media-dir", "", "Directory for uploaded media")
		sourceProvider = fs.String("source", "", "Media source provider: upload|folder")
		autoplay       = fs.Bool("autoplay", true, "Start playing media as soon as it arrives")
		backend        = fs.String("backend", "", "Player backend: mpv|none")
		mpvBinary      = fs.String("mpv", "", "mpv binary")
		mpvSocket      = fs.String("mpv-socket", "", "mpv JSON IPC socket path")
		mpvSpawn       = fs.Bool("mpv-spawn", true, "Spawn mpv instead of attaching to a running one")
		inputDevice    = fs.String("input-device", "", "Linux input event device for a remote or keyboard")
		ipcSocket      = fs.String("ipc-socket", "", "Unix domain socket path for IPC")
		logLevel       = fs.String("log-level", "", "Log level: error|warn|info|debug")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		printVersion()
		return nil
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Only flags given explicitly override the file.
	var o FlagOverrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			o.HTTPAddr = httpAddr
		case "media-dir":
			o.MediaDir = mediaDir
		case "source":
			o.SourceProvider = sourceProvider
		case "autoplay":
			o.Autoplay = autoplay
		case "backend":
			o.PlayerBackend = backend
		case "mpv":
			o.MPVBinary = mpvBinary
		case "mpv-socket":
			o.MPVSocketPath = mpvSocket
		case "mpv-spawn":
			o.MPVSpawn = mpvSpawn
		case "input-device":
			o.InputDevice = inputDevice
		case "ipc-socket":
			o.IPCSocketPath = ipcSocket
		case "log-level":
			o.LogLevel = logLevel
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := setupLogger(os.Stdout, level)

	store, err := NewMediaStore(cfg.Media.Dir)
	if err != nil {
		return err
	}

	picked, err := absPaths(fs.Args())
	if err != nil {
		return err
	}

	return serve(cfg, store, picked, logger)
}

// serve wires the components and blocks until shutdown.
func serve(cfg Config, store *MediaStore, picked []string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	broadcasts := make(chan StateBroadcast, 128)
	router := NewRouter(
		RouterConfig{QueueSize: cfg.Router.QueueSize},
		logger.With("component", "router"),
		newChannelObserver(broadcasts, logger.With("component", "broadcast")),
		metricsObserver{},
	)

	local := func(ev Event) {
		if err := router.TrySubmit(SourceLocal, ev); err != nil {
			logger.Warn("local command dropped", "event", eventLabel(ev), "error", err)
		}
	}

	var presenter interface {
		Presenter
		HostWindow
	}
	switch cfg.Player.Backend {
	case PlayerBackendNone:
		presenter = newHeadlessPresenter(cfg.Player.RenderHeight, router.Report(ctx), logger.With("component", "presenter"))
	default:
		presenter = newMPVPresenter(cfg.ToMPVConfig(), router.Report(ctx), local, logger.With("component", "mpv"))
	}

	source, err := newSourceProvider(cfg.Source, store.Dir(), router.Submit, logger.With("component", "source"))
	if err != nil {
		return err
	}

	stateWS := NewStateServer(logger.With("component", "ws"), router.Snapshot, HubConfig{})
	handler := newAPIHandler(cfg.HTTP, store, router, source.Notifier(), stateWS, logger.With("component", "http"))

	serverAddr := advertisedAddr(cfg.HTTP.Addr)
	state := NewPlayerState(serverAddr)

	logger.Info("starting remoteplay",
		"version", version,
		"server", serverAddr,
		"media_dir", store.Dir(),
		"source", source.Name(),
		"backend", cfg.Player.Backend,
		"ipc", cfg.IPC.SocketPath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		router.Run(gctx, state, effectTargets{
			Presenter: presenter,
			Window:    presenter,
			Shutdown:  cancel,
		})
		return nil
	})
	g.Go(func() error {
		stateWS.Hub().Run(gctx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(gctx, stateWS.Hub(), broadcasts, logger.With("component", "ws"))
		return nil
	})
	g.Go(func() error {
		return runHTTPServer(gctx, cfg.HTTP.Addr, handler, nil, logger.With("component", "http"))
	})
	g.Go(func() error {
		return runIPCServer(gctx, ExpandPath(cfg.IPC.SocketPath), router, logger.With("component", "ipc"))
	})
	g.Go(func() error {
		err := presenter.Run(gctx)
		if errors.Is(err, errPresenterClosed) {
			logger.Info("player window closed, shutting down")
			cancel()
			return nil
		}
		return err
	})
	g.Go(func() error {
		return source.Run(gctx)
	})
	g.Go(func() error {
		return runInput(gctx, cfg.Input.Devices, router.Submit, logger.With("component", "input"))
	})

	if len(picked) > 0 {
		if err := router.Submit(gctx, SourceLocal, PickFiles{Paths: picked}); err != nil {
			logger.Warn("initial file pick dropped", "error", err)
		}
	}

	err = g.Wait()
	logger.Info("shut down")
	return err
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(ExpandPath(p))
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}
