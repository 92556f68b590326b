// Package config loads binary configuration from the environment, with
// command-line flags taking precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrMissingUsername is returned when no identity was configured.
var ErrMissingUsername = errors.New("username is required")

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Client configures the chat client binaries.
type Client struct {
	ServerURL   string        `env:"CHAT_SERVER_URL" envDefault:"ws://localhost:8080/"`
	Username    string        `env:"CHAT_USERNAME"`
	SendQueue   int           `env:"CHAT_SEND_QUEUE" envDefault:"16"`
	DialTimeout time.Duration `env:"CHAT_DIAL_TIMEOUT" envDefault:"10s"`
	LogLevel    slog.Level    `env:"CHAT_LOG_LEVEL" envDefault:"info"`
	LogFile     string        `env:"CHAT_LOG_FILE"`
}

// LoadClient reads the environment, then applies args as flag overrides.
func LoadClient(fs *flag.FlagSet, args []string) (Client, error) {
	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		return Client{}, err
	}

	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (ws://, wss:// or tcp://)")
	fs.StringVar(&cfg.Username, "username", cfg.Username, "Username for chat")
	fs.IntVar(&cfg.SendQueue, "send-queue", cfg.SendQueue, "Outbound frame queue size")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Connect and handshake timeout")
	fs.TextVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs to this file")
	if err := fs.Parse(args); err != nil {
		return Client{}, err
	}

	cfg.Username = strings.TrimSpace(cfg.Username)
	if cfg.Username == "" {
		return Client{}, ErrMissingUsername
	}
	return cfg, nil
}

// Server configures the relay server.
type Server struct {
	ListenAddr      string     `env:"CHAT_LISTEN_ADDR" envDefault:":8080"`
	TCPAddr         string     `env:"CHAT_TCP_ADDR"`
	MaxParticipants int        `env:"CHAT_MAX_PARTICIPANTS" envDefault:"64"`
	LogLevel        slog.Level `env:"CHAT_LOG_LEVEL" envDefault:"info"`
}

// LoadServer reads the environment, then applies args as flag overrides.
func LoadServer(fs *flag.FlagSet, args []string) (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}

	fs.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "Server address to listen on")
	fs.StringVar(&cfg.TCPAddr, "tcp-addr", cfg.TCPAddr, "Optional address for the line-delimited TCP listener")
	fs.IntVar(&cfg.MaxParticipants, "max-participants", cfg.MaxParticipants, "Maximum registered users, 0 for no limit")
	fs.TextVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return Server{}, err
	}

	if cfg.MaxParticipants < 0 {
		return Server{}, fmt.Errorf("max participants must not be negative: %d", cfg.MaxParticipants)
	}
	return cfg, nil
}

// NewLogger builds a text logger at level writing to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// OpenLog returns the log destination for path. An empty path discards
// output. The returned func closes the file.
func OpenLog(path string) (io.Writer, func() error, error) {
	if path == "" {
		return io.Discard, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, f.Close, nil
}
