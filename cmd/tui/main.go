package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/omochice/linkchat/internal/bus"
	"github.com/omochice/linkchat/internal/client"
	"github.com/omochice/linkchat/internal/config"
	"github.com/omochice/linkchat/internal/session"
	"github.com/omochice/linkchat/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, config.ErrMissingUsername) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClient(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	logOut, closeLog, err := config.OpenLog(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := config.NewLogger(logOut, cfg.LogLevel)

	b := bus.New(logger)
	defer b.Close()

	ch, err := client.Dial(context.Background(), cfg.ServerURL, b, client.Options{
		Logger:      logger,
		QueueSize:   cfg.SendQueue,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return err
	}
	defer ch.Close()

	eng, err := session.New(cfg.Username, b, ch, session.WithLogger(logger))
	if err != nil {
		return err
	}
	defer eng.Close()

	_, err = tea.NewProgram(tui.New(eng, ch), tea.WithAltScreen()).Run()
	return err
}
