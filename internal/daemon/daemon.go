package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrape-network/scrape/internal/api"
	"github.com/scrape-network/scrape/internal/app/token"
	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/health"
	"github.com/scrape-network/scrape/internal/infra/events"
	"github.com/scrape-network/scrape/internal/infra/sqlite"
	"github.com/scrape-network/scrape/internal/program"
)

// Daemon is the scrape node runtime. It wires together all services.
type Daemon struct {
	Config    Config
	DB        *sqlite.DB
	Program   *program.Program
	Tokens    *token.Service
	Server    *api.Server
	Health    *health.Checker
	Publisher domain.Publisher

	nats    *events.NATSPublisher
	retry   *events.Retrying
	logFile *os.File
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	d := &Daemon{Config: cfg}

	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
		d.logFile = f
	}

	pc, err := cfg.ProgramConfig()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("program config: %w", err)
	}

	db, err := sqlite.Open(cfg.Node.DataDir)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.DB = db

	// Event sinks
	var sinks events.Multi
	if cfg.Logging.Level == "debug" {
		sinks = append(sinks, events.NewLogPublisher(log.Default()))
	}
	if cfg.Events.NATSURL != "" {
		np, err := events.DialNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			log.Printf("[daemon] WARNING: nats unavailable at %s: %v (events not published)", cfg.Events.NATSURL, err)
		} else {
			d.nats = np
			d.retry = events.NewRetrying(np, events.DefaultRetryConfig())
			sinks = append(sinks, d.retry)
		}
	}
	if len(sinks) > 0 {
		d.Publisher = sinks
	}

	prog, err := program.New(pc, db, db, d.Publisher)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create program: %w", err)
	}
	d.Program = prog
	d.Tokens = token.NewService(db)

	d.Health = health.NewChecker(db, prog, cfg.Node.DataDir)

	srv := api.NewServer(prog, db)
	srv.SetHealth(d.Health)
	srv.SetMaxRequestAge(parseDuration(cfg.API.MaxRequestAge, api.DefaultMaxRequestAge))
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)
	if d.retry != nil {
		go d.retry.Run(ctx, 5*time.Second)
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		d.Close()
	}()

	fmt.Printf("scrape serving on http://%s\n", addr)
	fmt.Printf("  Program: %s\n", d.Program.Config().ProgramID)
	if d.nats != nil {
		fmt.Printf("  Events:  %s (%s.*)\n", d.Config.Events.NATSURL, d.Config.Events.SubjectPrefix)
	}
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources. It is safe to call more than once.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.nats != nil {
		_ = d.nats.Close()
		d.nats = nil
	}
	if d.DB != nil {
		_ = d.DB.Close()
		d.DB = nil
	}
	if d.logFile != nil {
		log.SetOutput(os.Stderr)
		_ = d.logFile.Close()
		d.logFile = nil
	}
}
