package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"mailrules/internal/config"
	"mailrules/internal/engine"
	"mailrules/internal/gmail"
	"mailrules/internal/rules"
	"mailrules/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch os.Args[1] {
	case "fetch":
		err = runFetch(ctx, cfg, store, log)
	case "process":
		err = runProcess(ctx, cfg, store, log)
	case "report":
		err = runReport(ctx, store)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Error(os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: mailrules <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  fetch     Fetch messages from Gmail into the local database")
	fmt.Fprintln(os.Stderr, "  process   Evaluate rules against unread messages and apply actions")
	fmt.Fprintln(os.Stderr, "  report    Show processed messages and outcomes")
}

// runFetch pulls a batch of messages from Gmail and caches it locally.
func runFetch(ctx context.Context, cfg *config.Config, store storage.Storage, log *slog.Logger) error {
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	client := gmail.NewClient(http.DefaultClient, cfg.GmailToken, log)
	msgs, err := client.FetchMessages(ctx, cfg.FetchMaxResults)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	inserted, err := store.InsertMessages(ctx, msgs)
	if err != nil {
		return fmt.Errorf("store messages: %w", err)
	}
	log.Info("fetched messages", "fetched", len(msgs), "inserted", inserted, "duplicates", len(msgs)-inserted)
	return nil
}

// runProcess evaluates the rule document against the unread batch and
// dispatches planned actions to Gmail.
func runProcess(ctx context.Context, cfg *config.Config, store storage.Storage, log *slog.Logger) error {
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	doc, err := rules.Load(cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	log.Info("loaded rules", "file", cfg.RulesFile, "predicate", doc.Predicate, "rules", len(doc.Rules))

	client := gmail.NewClient(http.DefaultClient, cfg.GmailToken, log)
	mutator := gmail.NewMutator(client, log)

	eng := engine.New(doc, store, mutator, store, log)
	summary, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s: processed %d, matched %d, applied %d, failed %d\n",
		summary.RunID, summary.Processed, summary.Matched, summary.Applied, summary.Failed)
	return nil
}

// runReport prints processed messages and their recorded outcomes.
func runReport(ctx context.Context, store storage.Storage) error {
	msgs, err := store.ListRead(ctx)
	if err != nil {
		return fmt.Errorf("list read messages: %w", err)
	}

	if len(msgs) == 0 {
		fmt.Println("No messages have been marked read yet.")
	} else {
		fmt.Println("Processed messages:")
		for _, m := range msgs {
			fmt.Printf("  %s  %s  %q\n", m.GmailID, m.Sender, m.Subject)
		}
	}

	outcomes, err := store.ListOutcomes(ctx, "")
	if err != nil {
		return fmt.Errorf("list outcomes: %w", err)
	}
	if len(outcomes) == 0 {
		return nil
	}

	fmt.Println("\nOutcomes:")
	for _, o := range outcomes {
		status := "ok"
		if o.Failed {
			status = "FAILED: " + o.FailureReason
		}
		fmt.Printf("  %s  matched=%v  applied=[%s]  %s\n",
			o.MessageID, o.MatchedRules, strings.Join(o.AppliedActions, ", "), status)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
