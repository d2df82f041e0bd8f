package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tunez/scrobbled/internal/config"
	"github.com/tunez/scrobbled/internal/logging"
	"github.com/tunez/scrobbled/internal/monitor"
	"github.com/tunez/scrobbled/internal/notify"
	"github.com/tunez/scrobbled/internal/player"
	"github.com/tunez/scrobbled/internal/player/mpd"
	"github.com/tunez/scrobbled/internal/player/mpris"
	"github.com/tunez/scrobbled/internal/player/mpv"
	"github.com/tunez/scrobbled/internal/player/music"
	"github.com/tunez/scrobbled/internal/scrobble"
	"github.com/tunez/scrobbled/internal/scrobble/lastfm"
)

var version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `scrobbled - report what your music player plays to Last.fm

Usage: scrobbled [options]

Options:
  -config string
        Path to config file (default: ~/.config/scrobbled/config.toml)
  -stderr
        Also log to stderr
  -doctor
        Check configuration and read the player once, then exit
  -version
        Print version and exit

Run scrobbled-auth once to obtain a Last.fm session key.

`)
	}

	cfgPath := flag.String("config", "", "")
	toStderr := flag.Bool("stderr", false, "")
	doctor := flag.Bool("doctor", false, "")
	showVersion := flag.Bool("version", false, "")
	flag.Parse()

	if *showVersion {
		fmt.Println("scrobbled", version)
		return
	}

	cfg, resolvedPath, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, logFile, err := logging.Setup(logging.Options{
		Dir:    cfg.Log.Dir,
		Level:  cfg.Log.Level,
		Stderr: *toStderr,
	})
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logFile.Close()
	logger.Info("starting scrobbled", slog.String("version", version), slog.String("config", resolvedPath))

	src, err := buildSource(cfg.Player, logger)
	if err != nil {
		logger.Error("player init", slog.Any("err", err))
		log.Fatalf("init player: %v", err)
	}
	if c, ok := src.(interface{ Close() error }); ok {
		defer c.Close()
	}
	probe := player.FailClosed(src, logger)

	if *doctor {
		runDoctor(cfg, src)
		return
	}

	notifier, err := notify.New(cfg.Notify.Backend, "scrobbled")
	if err != nil {
		log.Fatalf("init notifier: %v", err)
	}

	client := lastfm.New(lastfm.Config{
		APIKey:     cfg.LastFM.APIKey,
		APISecret:  cfg.LastFM.APISecret,
		SessionKey: cfg.LastFM.SessionKey,
		Timeout:    time.Duration(cfg.LastFM.TimeoutSeconds) * time.Second,
	})

	mon := monitor.New(monitor.Options{
		Probe:         probe,
		Submitter:     notify.Announce(client, notifier, logger),
		Gate:          scrobble.NewGate(cfg.Scrobble.ProgressRatio),
		Interval:      cfg.Interval(),
		SubmitTimeout: cfg.SubmitTimeout(),
		BackoffMax:    cfg.BackoffMax(),
		NowPlaying:    cfg.Scrobble.NowPlaying,
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mon.Run(ctx); err != nil {
		logger.Error("monitor", slog.Any("err", err))
		log.Fatalf("monitor: %v", err)
	}
	logger.Info("shutdown complete")
}

func buildSource(p config.PlayerConfig, logger *slog.Logger) (player.Source, error) {
	backend := p.Backend
	if backend == "auto" {
		backend = "mpris"
		if runtime.GOOS == "darwin" {
			backend = "music"
		}
	}
	switch backend {
	case "music":
		return music.New(), nil
	case "mpris":
		return mpris.New(p.MPRISPlayer), nil
	case "mpd":
		return mpd.New(p.MPDAddress, p.MPDPassword), nil
	case "mpv":
		return mpv.New(mpv.Options{IPCPath: p.MPVIPC, Logger: logger}), nil
	default:
		return nil, fmt.Errorf("unknown player backend %s", p.Backend)
	}
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

func runDoctor(cfg *config.Config, src player.Source) {
	fmt.Println("scrobbled doctor")
	fmt.Println("Config file:", okStyle.Render("OK"))
	fmt.Printf("Progress ratio: %.2f, poll every %s\n", cfg.Scrobble.ProgressRatio, cfg.Interval())

	if cfg.Player.Backend == "music" || (cfg.Player.Backend == "auto" && runtime.GOOS == "darwin") {
		if path, err := exec.LookPath("osascript"); err != nil {
			fmt.Println("osascript:", failStyle.Render("NOT FOUND"))
		} else {
			fmt.Println("osascript:", okStyle.Render("OK"), dimStyle.Render(path))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := src.Read(ctx)
	switch {
	case err == nil:
		fmt.Printf("Player (%s): %s %s - %s [%d/%ds]\n", src.Name(), okStyle.Render("PLAYING"),
			snap.Artist, snap.Title, snap.Position, snap.Duration)
	case errors.Is(err, player.ErrNotPlaying):
		fmt.Printf("Player (%s): %s\n", src.Name(), okStyle.Render("reachable, not playing"))
	default:
		fmt.Printf("Player (%s): %s %v\n", src.Name(), failStyle.Render("ERROR"), err)
	}
}
