package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/malbeclabs/tokenvault/utils/pkg/logger"
	"github.com/malbeclabs/tokenvault/vault/pkg/ledger"
	"github.com/malbeclabs/tokenvault/vault/pkg/metrics"
	"github.com/malbeclabs/tokenvault/vault/pkg/program"
	"github.com/malbeclabs/tokenvault/vault/pkg/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8080"
	defaultMetricsAddr = "0.0.0.0:0"
	defaultProgramID   = "Be9kXVWMNSQgF7DjfU61Dutj3EK8QbTEYNJ8cRvuVrWK"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on for the vault API (or set VAULT_LISTEN_ADDR env var)")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics (empty to disable)")
	programIDFlag := flag.String("program-id", defaultProgramID, "Vault program id (or set VAULT_PROGRAM_ID env var)")
	lamportsPerByteFlag := flag.Uint64("lamports-per-byte", ledger.DefaultLamportsPerByte, "Rent rate used for the rent-exempt reserve")
	allowedOriginsFlag := flag.StringSlice("allowed-origins", nil, "CORS allowed origins (or set VAULT_ALLOWED_ORIGINS env var, comma separated)")
	enableAirdropFlag := flag.Bool("enable-airdrop", false, "Expose the airdrop endpoint for funding local accounts (or set VAULT_ENABLE_AIRDROP=true)")
	maxAirdropFlag := flag.Uint64("max-airdrop-lamports", 10_000_000_000, "Maximum lamports per airdrop request")
	maxRequestTTLFlag := flag.Duration("max-request-ttl", 5*time.Minute, "Furthest in the future a signed request may set its expiry")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "Maximum time to wait for in-flight requests during graceful shutdown")

	flag.Parse()

	if env := os.Getenv("VAULT_LISTEN_ADDR"); env != "" {
		*listenAddrFlag = env
	}
	if env := os.Getenv("VAULT_PROGRAM_ID"); env != "" {
		*programIDFlag = env
	}
	if env := os.Getenv("VAULT_ALLOWED_ORIGINS"); env != "" {
		*allowedOriginsFlag = strings.Split(env, ",")
	}
	if env := os.Getenv("VAULT_ENABLE_AIRDROP"); env != "" {
		enabled, err := strconv.ParseBool(env)
		if err != nil {
			return fmt.Errorf("invalid VAULT_ENABLE_AIRDROP: %w", err)
		}
		*enableAirdropFlag = enabled
	}

	log := logger.New(*verboseFlag)

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Release:     version,
			Environment: os.Getenv("SENTRY_ENVIRONMENT"),
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized")
	}

	programID, err := solana.PublicKeyFromBase58(*programIDFlag)
	if err != nil {
		return fmt.Errorf("invalid program id %q: %w", *programIDFlag, err)
	}

	clock := clockwork.NewRealClock()
	l, err := ledger.New(ledger.Config{
		Logger:          log,
		Clock:           clock,
		ProgramID:       programID,
		LamportsPerByte: *lamportsPerByteFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	prog, err := program.New(program.Config{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to create program: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:             log,
		Clock:              clock,
		ListenAddr:         *listenAddrFlag,
		ShutdownTimeout:    *shutdownTimeoutFlag,
		VersionInfo:        server.VersionInfo{Version: version, Commit: commit, Date: date},
		Ledger:             l,
		Program:            prog,
		AllowedOrigins:     *allowedOriginsFlag,
		EnableAirdrop:      *enableAirdropFlag,
		MaxAirdropLamports: *maxAirdropFlag,
		MaxRequestTTL:      *maxRequestTTLFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("vaultd starting", "version", version, "program_id", programID, "airdrop", *enableAirdropFlag)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		g.Go(func() error {
			return serveMetrics(ctx, log, *metricsAddrFlag)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("vaultd stopped")
	return nil
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve prometheus metrics: %w", err)
	}
	return nil
}
