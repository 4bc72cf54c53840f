// Package main is the entry point for the tenant storage engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/maxmcd/do-s3/internal/auth"
	"github.com/maxmcd/do-s3/internal/broadcast"
	"github.com/maxmcd/do-s3/internal/config"
	"github.com/maxmcd/do-s3/internal/logging"
	"github.com/maxmcd/do-s3/internal/metrics"
	"github.com/maxmcd/do-s3/internal/server"
	"github.com/maxmcd/do-s3/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 9000)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	exportPath := flag.String("export", "", "write a JSON backup snapshot to this path and exit")
	importPath := flag.String("import", "", "load a JSON backup snapshot from this path and exit")
	importReplace := flag.Bool("import-replace", false, "with -import, delete existing rows before loading")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if cfg.Metrics.Enabled {
		metrics.Register()
	}

	// Crash-only design: every startup runs the same steps a "recovery"
	// would. There is no separate recovery mode — opening the store below
	// runs the migration runner unconditionally, and SQLite's WAL recovers
	// on open.
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create store directory: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(context.Background(), cfg.Store.Path, cfg.Store.ChunkSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *exportPath != "" {
		runExport(st, *exportPath)
		return
	}
	if *importPath != "" {
		runImport(st, *importPath, *importReplace)
		return
	}

	verifier := auth.NewVerifier(cfg.Auth.Secrets, cfg.Auth.AllowDevBypass)
	b := broadcast.New()
	srv := server.New(cfg, st, verifier, b)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig.String())

		timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		slog.Info("server stopped")

	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func runExport(st *store.Store, path string) {
	data, err := st.Backup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "writing export file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote snapshot to %s\n", path)
}

func runImport(st *store.Store, path string, replace bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading import file: %v\n", err)
		os.Exit(1)
	}
	result, err := st.Restore(string(data), replace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
	for _, table := range []string{"objects", "multipart_uploads", "multipart_parts"} {
		fmt.Printf("%s: inserted=%d skipped=%d\n", table, result.Counts[table], result.Skipped[table])
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
}
