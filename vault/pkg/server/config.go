package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/tokenvault/vault/pkg/ledger"
	"github.com/malbeclabs/tokenvault/vault/pkg/program"
)

const (
	defaultMaxTrackedRequests = 100_000
	defaultMaxBodyBytes       = 64 << 10
	defaultEventsPageSize     = 100
	maxEventsPageSize         = 1000
	defaultMaxRequestTTL      = 5 * time.Minute
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger            *slog.Logger
	Clock             clockwork.Clock
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	Ledger  *ledger.Ledger
	Program *program.Program

	AllowedOrigins []string
	// EnableAirdrop exposes the faucet endpoint, capped at MaxAirdropLamports per call.
	EnableAirdrop      bool
	MaxAirdropLamports uint64
	// MaxTrackedRequests bounds how many unexpired request ids are remembered.
	MaxTrackedRequests int
	// MaxRequestTTL is the furthest in the future a signed request may set its expiry.
	MaxRequestTTL time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.Program == nil {
		return errors.New("program is required")
	}
	if cfg.EnableAirdrop && cfg.MaxAirdropLamports == 0 {
		return errors.New("max airdrop lamports must be greater than 0 when airdrop is enabled")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxRequestTTL <= 0 {
		cfg.MaxRequestTTL = defaultMaxRequestTTL
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxTrackedRequests <= 0 {
		cfg.MaxTrackedRequests = defaultMaxTrackedRequests
	}
	return nil
}
