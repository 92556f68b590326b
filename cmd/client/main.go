package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/omochice/linkchat/internal/bus"
	"github.com/omochice/linkchat/internal/client"
	"github.com/omochice/linkchat/internal/config"
	"github.com/omochice/linkchat/internal/session"
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
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.New(logger)
	defer b.Close()

	ch, err := client.Dial(ctx, cfg.ServerURL, b, client.Options{
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

	p := &printer{out: os.Stdout}
	eng.OnChange(p.render)
	p.render(eng.State())

	fmt.Println("Type your messages (or '/quit' to exit):")
	drafts := make(chan string)
	go readLines(ctx, os.Stdin, drafts, stop)

	return eng.Run(ctx, drafts)
}

// readLines forwards stdin lines as drafts until EOF or /quit.
func readLines(ctx context.Context, in io.Reader, drafts chan<- string, quit func()) {
	defer quit()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "/quit" {
			return
		}
		select {
		case drafts <- line:
		case <-ctx.Done():
			return
		}
	}
}
