package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/facematch/camera"
	cvcamera "github.com/nvr-ai/facematch/camera/opencv"
	"github.com/nvr-ai/facematch/classifier"
	"github.com/nvr-ai/facematch/logging"
	"github.com/nvr-ai/facematch/notify"
	"github.com/nvr-ai/facematch/profiler"
	"github.com/nvr-ai/facematch/reference"
	"github.com/nvr-ai/facematch/server"
	"github.com/nvr-ai/facematch/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live face matching session",
	Long: `Opens camera 0 or 1 (or a video file, or directories of recorded frames),
outlines detected faces and compares the first face with the reference image.
Press "s" in the window to swap cameras and "q" or Esc to quit. With --serve,
the latest frame, match events and the swap action are also available over HTTP.`,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("camera", -1, "Initial camera index, 0 or 1 (default from config)")
	runCmd.Flags().StringSlice("device", nil, "Video files or stream URLs for cameras 0 and 1")
	runCmd.Flags().StringSlice("frames", nil, "Frame directories to replay as camera 0 and camera 1")
	runCmd.Flags().Bool("no-window", false, "Do not open a display window")
	runCmd.Flags().Bool("serve", false, "Start the HTTP server")
	runCmd.Flags().String("addr", "", "HTTP listen address (default from config)")
	runCmd.Flags().Bool("profile", false, "Log periodic runtime profiles")
}

func runSession(cmd *cobra.Command, args []string) error {
	if index := mustGetInt(cmd, "camera"); index >= 0 {
		cfg.Camera.Index = index
	}
	if devices := mustGetStringSlice(cmd, "device"); len(devices) > 0 {
		cfg.Camera.Devices = devices
	}
	if dirs := mustGetStringSlice(cmd, "frames"); len(dirs) > 0 {
		cfg.Camera.FrameDirs = dirs
	}
	if mustGetBool(cmd, "no-window") {
		cfg.Display.Enabled = false
	}
	if mustGetBool(cmd, "serve") {
		cfg.Server.Enabled = true
	}
	if addr := mustGetString(cmd, "addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if mustGetBool(cmd, "profile") {
		cfg.Profiler.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bundle := newBundle(cfg, logger)
	backend := buildBackend(cfg, bundle, logger)
	defer backend.Close()

	dispatcher := notify.NewDispatcher(cfg.Notify.QueueSize, logging.Component(logger, "notify"))
	dispatcher.AddSink(notify.LogSink(logging.Component(logger, "decision")))

	store := &reference.Store{}
	opts := []classifier.Option{
		classifier.WithNotifier(dispatcher),
		classifier.WithLogger(logging.Component(logger, "classifier")),
	}

	var prof *profiler.RuntimeProfiler
	if cfg.Profiler.Enabled {
		prof = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
			ReportInterval: cfg.Profiler.ReportInterval,
			Logger:         logging.Component(logger, "profiler"),
		})
		prof.AddMetricsCollector(dispatcher)
		opts = append(opts, classifier.WithTimer(prof))
	}

	selector, err := camera.NewSelector(cfg.Camera.Index)
	if err != nil {
		return err
	}

	var opener camera.Opener
	if len(cfg.Camera.FrameDirs) > 0 {
		opener = camera.DirectoryOpener(cfg.Camera.FrameDirs...)
	} else {
		opener = cvcamera.Opener(cvcamera.CaptureConfig{
			Devices:    cfg.Camera.Devices,
			Resolution: cfg.Resolution(),
		})
	}

	sessCfg := session.Config{
		Opener:     opener,
		Selector:   selector,
		Classifier: classifier.New(backend, store, opts...),
		Loader:     referenceLoader(bundle, logger),
		Store:      store,
		Logger:     logging.Component(logger, "session"),
	}

	var window *cvcamera.Window
	if cfg.Display.Enabled {
		window = cvcamera.NewWindow(cfg.Display.Title)
		defer window.Close()
		sessCfg.Display = window
	}

	var (
		hub    *server.Hub
		frames *server.FrameStore
	)
	if cfg.Server.Enabled {
		hub = server.NewHub(logging.Component(logger, "events"))
		frames = &server.FrameStore{}
		dispatcher.AddSink(hub)
		sessCfg.Observers = append(sessCfg.Observers, frames.Observe)
	}

	sess, err := session.New(sessCfg)
	if err != nil {
		return err
	}
	if window != nil {
		window.OnSwap = func() { sess.SwapCamera() }
		window.OnQuit = cancel
	}
	if prof != nil {
		prof.AddMetricsCollector(sess.Stats())
		prof.Start(ctx)
		defer prof.Stop()
	}

	logger.Info().
		Str("backend", backend.Name()).
		Int("camera", selector.Index()).
		Bool("window", cfg.Display.Enabled).
		Bool("server", cfg.Server.Enabled).
		Msg("starting session")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return sess.Run(gctx)
	})
	g.Go(func() error { return dispatcher.Run(gctx) })
	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Addr, sess, frames, hub, logging.Component(logger, "http"))
		g.Go(func() error { return hub.Run(gctx) })
		g.Go(func() error { return srv.Start(gctx) })
	}

	err = g.Wait()
	logger.Info().
		Uint64("frames", sess.Stats().Frames.Load()).
		Uint64("matches", sess.Stats().Matches.Load()).
		Uint64("events_dropped", dispatcher.Dropped()).
		Msg("session finished")
	return err
}
