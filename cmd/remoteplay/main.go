package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/KarpelesLab/remoteplay"
	"github.com/KarpelesLab/remoteplay/beepaudio"
	"github.com/KarpelesLab/remoteplay/internal/config"
	"github.com/KarpelesLab/remoteplay/internal/logger"
	"github.com/KarpelesLab/remoteplay/playback"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	headless := flag.Bool("headless", false, "Play without the terminal interface")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <url>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// the terminal belongs to the interface
	logFile := cfg.Logging.File
	if logFile == "" && !*headless {
		logFile = filepath.Join(os.TempDir(), "remoteplay.log")
	}

	zl, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()

	if err := run(cfg, zl.Sugar(), flag.Arg(0), *headless); err != nil {
		zl.Error("remoteplay stopped", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger, url string, headless bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dm := newManager(cfg, log)
	info, err := dm.Probe(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", url, err)
	}
	log.Infof("resolved %s: %d bytes, %s", info.URL, info.Size, info.ContentType)
	if !info.AcceptsRanges {
		log.Warnf("%s does not advertise range support, seeking may be slow", info.URL)
	}

	cacheDir := cfg.Cache.Dir
	if cacheDir == "" {
		cacheDir = remoteplay.DefaultCacheDir()
	}
	if cfg.Cache.Disabled {
		cacheDir = ""
	}

	audioLog := log.Named("audio")
	machine := playback.New(playback.Config{
		Streams:      playback.ManagerStreams(dm),
		Prober:       &beepaudio.Prober{Logger: audioLog},
		Decoders:     beepaudio.Decoders{},
		Output:       &beepaudio.Speaker{Buffer: cfg.Playback.GetOutputBuffer(), Logger: audioLog},
		Resampler:    &beepaudio.Resampler{Quality: cfg.Playback.ResampleQuality},
		CacheDir:     cacheDir,
		Logger:       log.Named("playback"),
		IdleInterval: cfg.Playback.GetIdleInterval(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dm.Run(ctx) })
	g.Go(func() error { return machine.Run(ctx) })

	play := playback.Play{
		ResourceID: remoteplay.ResourceID(info.URL),
		URL:        info.URL,
		MimeType:   info.ContentType,
	}
	if info.Size > 0 {
		play.Length = info.Size
	}

	g.Go(func() error {
		defer cancel()

		if err := machine.Send(ctx, play); err != nil {
			return err
		}
		if headless {
			return runHeadless(ctx, machine, log)
		}
		return runTUI(ctx, machine, dm, play.ResourceID)
	})

	return g.Wait()
}

// newManager configures a download manager. The timeout is applied to the
// default client so its transport settings are kept.
func newManager(cfg *config.Config, log *zap.SugaredLogger) *remoteplay.DownloadManager {
	dm := remoteplay.NewDownloadManager()
	dm.Client.Timeout = cfg.Download.GetTimeout()
	dm.Logger = log.Named("download")
	dm.TickInterval = cfg.Download.GetTickInterval()
	dm.IdleChunkSize = cfg.Download.IdleChunkSize
	dm.MaxStreamsPerTask = cfg.Download.MaxStreams
	dm.MaxConcurrentTasks = cfg.Download.MaxConcurrent
	dm.OpenAttempts = cfg.Download.OpenAttempts
	dm.UserAgent = cfg.Download.UserAgent
	dm.RejectZeroPayload = cfg.Download.RejectZeroPayload
	return dm
}

// runHeadless logs status changes until the track ends.
func runHeadless(ctx context.Context, machine *playback.Machine, log *zap.SugaredLogger) error {
	started := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-machine.Status():
			switch {
			case st.Playing:
				started = true
				log.Infof("%s %s", st.Title, formatStatus(st))
			case started && st.ResourceID == "":
				return fmt.Errorf("playback failed")
			case started:
				log.Info("end of track")
				return nil
			}
		}
	}
}
