// Command scrobbled-auth runs the one-time Last.fm desktop authorization and
// prints (or saves) the session key scrobbled needs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tunez/scrobbled/internal/config"
	"github.com/tunez/scrobbled/internal/scrobble/lastfm"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file (default: ~/.config/scrobbled/config.toml)")
	save := flag.Bool("save", false, "Write the session key into the config file")
	noBrowser := flag.Bool("no-browser", false, "Only print the authorization URL")
	flag.Parse()

	cfg, resolvedPath, err := config.Read(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.ValidateAPI(*cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	client := lastfm.New(lastfm.Config{
		APIKey:    cfg.LastFM.APIKey,
		APISecret: cfg.LastFM.APISecret,
	})

	m := newModel(context.Background(), client)
	if !*noBrowser {
		m.openURL = openBrowser
	}
	if *save {
		m.save = func(key string) error { return config.SaveSessionKey(resolvedPath, key) }
		m.savePath = resolvedPath
	}

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	if fm, ok := final.(model); ok && fm.err != nil {
		os.Exit(1)
	}
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return cmd.Process.Release()
}
