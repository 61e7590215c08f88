package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/adaptive-form/internal/app"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/config"
	"github.com/danielpatrickdp/adaptive-form/internal/logging"
)

// #region main
func main() {
	cfg, err := config.Load(envOr("ADAPT_CONFIG", ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logger := logging.New("adaptd")

	a, err := app.Open(cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	go sweepLoop(ctx, a, logger)

	logger.Info("adaptive form controller ready",
		"store", cfg.Store.Driver,
		"provider", envOr("ADAPT_PROVIDER_ADDRESS", cfg.Provider.Address),
		"budget_ms", cfg.Pipeline.BudgetMs,
	)

	if err := serve(ctx, a, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("input loop failed", "error", err)
		os.Exit(1)
	}
}

// #endregion main

// #region serve

// serve reads one JSON batch per line and writes one JSON decision per line.
// Malformed lines and state errors produce an error line and the loop
// continues.
func serve(ctx context.Context, a *app.App, in io.Reader, out io.Writer, logger *slog.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(out)

	lineNum := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		lineNum++
		if len(line) == 0 {
			continue
		}

		var b behavior.Batch
		if err := json.Unmarshal(line, &b); err != nil {
			logger.Warn("skipping malformed batch", "line", lineNum, "error", err)
			if err := enc.Encode(errorLine{Line: lineNum, Error: err.Error()}); err != nil {
				return fmt.Errorf("write error line: %w", err)
			}
			continue
		}

		d, err := a.Decide(ctx, b)
		if err != nil {
			logger.Error("decision failed", "session_id", b.SessionID, "error", err)
			if err := enc.Encode(errorLine{Line: lineNum, SessionID: b.SessionID, Error: err.Error()}); err != nil {
				return fmt.Errorf("write error line: %w", err)
			}
			continue
		}
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("write decision: %w", err)
		}
	}
	return scanner.Err()
}

type errorLine struct {
	Line      int    `json:"line"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error"`
}

// #endregion serve

// #region helpers
func sweepLoop(ctx context.Context, a *app.App, logger *slog.Logger) {
	ttl := a.Config.Store.IdleTTL()
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := a.Sweep(ctx, now)
			if err != nil {
				logger.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("swept idle sessions", "count", n)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
