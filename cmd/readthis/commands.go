package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avelis/readthis/internal/config"
	"github.com/avelis/readthis/internal/remote"
	"github.com/avelis/readthis/internal/target"
)

// quickSyncBudget bounds the inline drain after a CLI capture so control
// returns to the user well under a second even with a slow network.
const quickSyncBudget = 800 * time.Millisecond

const originCLI = "cli"

// --- save / read ---

var saveCmd = &cobra.Command{
	Use:   "save <url>...",
	Short: "Save links to read later",
	Long: `Save links to read later.

The link is recorded locally first and always succeeds; syncing to the
remote collection happens immediately when possible and on the next sync
otherwise.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return capture(cmd.Context(), args, remote.StatusUnread)
	},
}

var readCmd = &cobra.Command{
	Use:   "read <url>...",
	Short: "Mark links as read",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return capture(cmd.Context(), args, remote.StatusRead)
	},
}

func capture(ctx context.Context, rawURLs []string, desired remote.Status) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.close()

	var invalid []string
	for _, raw := range rawURLs {
		targetURL, ok := target.Normalize(raw)
		if !ok {
			invalid = append(invalid, raw)
			printError("not an http(s) URL: %q", raw)
			continue
		}

		if _, err := e.queue.Enqueue(targetURL, desired, originCLI); err != nil {
			return fmt.Errorf("recording intent: %w", err)
		}

		applied := false
		if e.remote {
			res := e.rec.DrainTarget(ctx, e.queue, targetURL, quickSyncBudget)
			applied = len(res.Applied) == 1
		}

		host := target.DisplayHost(targetURL)
		if applied {
			printSuccess("%s %s (synced)", captureVerb(desired), host)
		} else {
			printSuccess("%s %s (queued)", captureVerb(desired), host)
		}
	}

	notifyDaemon(e.cfg, "links")

	if len(invalid) > 0 {
		return fmt.Errorf("%d invalid link(s)", len(invalid))
	}
	return nil
}

func captureVerb(desired remote.Status) string {
	if desired == remote.StatusRead {
		return "Marked read:"
	}
	return "Saved"
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List links from the remote collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFlag, _ := cmd.Flags().GetString("status")
		cursor, _ := cmd.Flags().GetString("cursor")
		limit, _ := cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")

		var status remote.Status
		if statusFlag != "all" {
			status = remote.Status(statusFlag)
			if !status.Valid() {
				return fmt.Errorf("invalid --status %q (unread, read or all)", statusFlag)
			}
		}

		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.close()
		if err := e.requireRemote(); err != nil {
			return err
		}

		pager := *e.pager
		if limit > 0 {
			pager.Limit = limit
		}

		shown := 0
		for {
			pg, err := pager.Fetch(cmd.Context(), status, cursor)
			if err != nil {
				return err
			}
			for _, link := range pg.Links {
				printLink(link)
				shown++
			}
			cursor = pg.Next
			if cursor == "" || !all {
				break
			}
		}

		if shown == 0 {
			fmt.Println("No links found.")
			return nil
		}
		if cursor != "" {
			fmt.Printf("\nMore available. Next page:\n  readthis list --status %s --cursor %s\n", statusFlag, cursor)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("status", "unread", "filter by status: unread, read or all")
	listCmd.Flags().String("cursor", "", "resume from a previous page's cursor")
	listCmd.Flags().Int("limit", 0, "page size (default from config)")
	listCmd.Flags().Bool("all", false, "fetch every page")
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Apply all pending intents to the remote collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.close()
		if err := e.requireRemote(); err != nil {
			return err
		}

		res := e.rec.Drain(cmd.Context(), e.queue, e.cfg.DrainBudget())

		for _, t := range res.Applied {
			printSuccess("synced %s", t)
		}
		for _, t := range res.Failed {
			printWarning("still queued %s", t)
		}
		if res.TimedOut {
			printWarning("sync budget exhausted; remaining intents stay queued")
		}
		if len(res.Applied) == 0 && len(res.Failed) == 0 && !res.TimedOut {
			fmt.Println("Nothing to sync.")
		}
		if len(res.Applied) > 0 {
			notifyDaemon(e.cfg, "links")
		}
		return nil
	},
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show pending intents",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.close()

		intents, err := e.queue.Snapshot()
		if err != nil {
			return err
		}
		if len(intents) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		for _, it := range intents {
			printIntent(it)
		}
		fmt.Printf("\n%d pending\n", len(intents))
		return nil
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Import a Pocket CSV export into the queue",
	Long: `Import a Pocket CSV export (title,url,time_added,tags,status) into the
intent queue. Only rows with status "unread" are imported; they sync to the
remote collection on the next drain.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening csv: %w", err)
		}
		defer f.Close()

		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.close()

		imported, skipped, err := importPocketCSV(f, e)
		if err != nil {
			return err
		}

		printSuccess("Imported %d links (%d skipped)", imported, skipped)
		if imported > 0 {
			printStep("Run `readthis sync` to push them to the remote collection.")
			notifyDaemon(e.cfg, "links")
		}
		return nil
	},
}

func importPocketCSV(r io.Reader, e *engine) (imported, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Pocket exports have ragged rows.

	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, skipped, fmt.Errorf("reading csv: %w", err)
		}
		if first {
			first = false
			if len(row) > 0 && strings.EqualFold(row[0], "title") {
				continue
			}
		}
		if len(row) < 5 {
			skipped++
			continue
		}

		rawURL, status := row[1], strings.TrimSpace(row[4])
		if status != "unread" {
			skipped++
			continue
		}
		targetURL, ok := target.Normalize(rawURL)
		if !ok {
			skipped++
			continue
		}
		if _, err := e.queue.Enqueue(targetURL, remote.StatusUnread, "import"); err != nil {
			return imported, skipped, fmt.Errorf("enqueuing %s: %w", targetURL, err)
		}
		imported++
	}
	return imported, skipped, nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show readthis system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		client := &http.Client{Timeout: 2 * time.Second}
		healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
		if resp, err := client.Get(healthURL); err != nil {
			printStatus("Daemon", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				printStatus("Daemon", "running on port %d", cfg.Server.Port)
			} else {
				printStatus("Daemon", "error (HTTP %d)", resp.StatusCode)
			}
		}

		if cfg.Remote.BaseURL == "" {
			printStatus("Remote", "not configured")
		} else {
			printStatus("Remote", "%s", cfg.Remote.BaseURL)
			if cfg.Remote.Token != "" {
				if expired, err := remote.TokenExpired(cfg.Remote.Token, time.Now()); err == nil && expired {
					printWarning("remote bearer token is expired")
				}
			}
		}

		e, err := newEngine()
		if err == nil {
			defer e.close()
			if n, err := e.queue.Size(); err == nil {
				printStatus("Pending intents", "%d", n)
			}
		}

		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  (env %s)\n", paint(ansiBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
