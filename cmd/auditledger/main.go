package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Devibnu/talkabiz-sub022/pkg/checksum"
	"github.com/Devibnu/talkabiz-sub022/pkg/config"
	"github.com/Devibnu/talkabiz-sub022/pkg/observability"
	"github.com/Devibnu/talkabiz-sub022/pkg/store"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "append":
		return runAppendCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "stats":
		return runStatsCmd(args[2:], stdout, stderr)
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "history":
		return runHistoryCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "auditledger - append-only audit ledger operations")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  auditledger <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	printCommand(w, "append", "Append one audit event from JSON (--file, --json)")
	printCommand(w, "verify", "Run an integrity check over stored entries (--limit, --cursor, --json)")
	printCommand(w, "stats", "Show ledger statistics (--from, --to, --json)")
	printCommand(w, "export", "Export an evidence pack (--out, --from, --to, --category, --profile)")
	printCommand(w, "history", "Show the timeline of one entity (--entity-type, --entity-id)")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-10s %s\n", name, desc)
}

// env holds everything a command needs after setup.
type env struct {
	cfg    *config.Config
	db     *sql.DB
	store  store.Store
	engine *checksum.Engine
	obs    *observability.Provider
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	initLogger(cfg.LogLevel)

	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	st, err := store.NewSQLStore(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	var obs *observability.Provider
	if cfg.OTLPEnabled {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obs, err = observability.New(ctx, obsCfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init observability: %w", err)
		}
	}

	return &env{
		cfg:    cfg,
		db:     db,
		store:  st,
		engine: checksum.New(cfg.ChecksumKey),
		obs:    obs,
	}, nil
}

func (e *env) close() {
	if e.obs != nil {
		_ = e.obs.Shutdown(context.Background())
	}
	_ = e.db.Close()
}

func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
