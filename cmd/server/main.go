package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/linkchat/internal/chat"
	"github.com/omochice/linkchat/internal/config"
	"github.com/omochice/linkchat/internal/transport/tcp"
	"github.com/omochice/linkchat/internal/transport/ws"
)

func main() {
	cfg, err := config.LoadServer(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	hub := chat.NewHub(
		chat.WithMaxParticipants(cfg.MaxParticipants),
		chat.WithLogger(logger),
	)
	wsServer := ws.New(cfg.ListenAddr, hub, logger)

	errCh := make(chan error, 2)
	go func() {
		errCh <- wsServer.Start()
	}()

	var tcpServer *tcp.Server
	if cfg.TCPAddr != "" {
		tcpServer = tcp.New(cfg.TCPAddr, hub, logger)
		go func() {
			errCh <- tcpServer.Start()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	case <-sigChan:
		logger.Info("shutting down server")
	}

	wsServer.Stop()
	if tcpServer != nil {
		tcpServer.Stop()
	}
}
