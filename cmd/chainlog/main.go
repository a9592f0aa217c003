// Package main is the CLI entry point for chainlog, a tamper-evident,
// hash-chained, append-only audit trail.
//
// Every entry carries the hash of its predecessor, so modifying, removing,
// or reordering any persisted record breaks the chain from that point
// forward and is caught by verification. A Merkle tree over the entry
// hashes supplies O(log n) inclusion proofs against a published tree head.
//
// Write path overview:
//
//	caller (CLI or HTTP middleware)
//	    |-- normalize the raw event (derive action, resource, outcome)
//	    |-- redact sensitive fields
//	    |-- assign index, timestamp, prev_hash under the chain lock
//	    |-- hash and durably write (bounded retry with backoff)
//	    +-- advance the in-memory head, return the receipt
//
// CLI commands (cobra):
//
//	chainlog record       - Append one event
//	chainlog tail         - Show recent entries (-f to follow)
//	chainlog query        - Filtered reads
//	chainlog verify       - Recompute and check the hash chain
//	chainlog prove        - Merkle inclusion proof for one entry
//	chainlog head         - Print the chain head
//	chainlog export       - Dump the chain as json/jsonl/csv
//	chainlog retention    - List entries old enough to archive
//	chainlog init-config  - Write the default config file
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainlog/chainlog/internal/audit"
	"github.com/chainlog/chainlog/internal/config"
	"github.com/chainlog/chainlog/internal/store/filelog"
	"github.com/chainlog/chainlog/internal/store/postgres"
	"github.com/chainlog/chainlog/internal/store/sqlite"
)

// Build-time variables injected via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-08-22"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// defaultConfigPath returns ~/.chainlog/config.yaml, falling back to the
// working directory if the home directory cannot be determined.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".chainlog", "config.yaml")
	}
	return filepath.Join(home, ".chainlog", "config.yaml")
}

// main builds the cobra command tree and executes it. The signal context
// makes every command, not just the long-running ones, cancellable with
// Ctrl+C; a hung Postgres dial or a large export stops cleanly.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// ============================================================================
// Root command
// ============================================================================

// configPath is the global flag for the chainlog config file.
var configPath string

// verbose enables info/debug logging from the audit packages.
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "chainlog",
	Short: "chainlog: tamper-evident audit trail",
	Long: `chainlog records actions as hash-chained, append-only audit entries.
Each entry's hash covers its contents and the hash of the previous entry,
so any modification of persisted history is detectable. Entries can be
queried, verified, proven included via Merkle proofs, and exported.

Run 'chainlog init-config' once to write the default configuration, then
'chainlog record' to append your first entry.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

func init() {
	// --config: Override the default ~/.chainlog/config.yaml.
	// Persistent so all subcommands inherit it.
	rootCmd.PersistentFlags().StringVar(
		&configPath,
		"config",
		defaultConfigPath(),
		"Path to the chainlog config file",
	)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(headCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(retentionCmd)
	rootCmd.AddCommand(initConfigCmd)
}

// initLogging routes slog output to stderr so command output on stdout stays
// machine-readable. The audit packages log at info level during normal
// operation; that chatter is suppressed unless --verbose is set.
func initLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// openLog loads the config and opens the audit log over the configured
// storage backend. Every command goes through here, so a broken config or an
// unreachable backend fails the same way everywhere.
func openLog(ctx context.Context) (*audit.Log, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	auditLog, err := audit.New(ctx, store, audit.Options{
		Digest:          cfg.Digest,
		RedactFields:    cfg.Redact.Fields,
		RedactMarker:    cfg.Redact.Marker,
		RedactMaxDepth:  cfg.Redact.MaxDepth,
		MaxEntryBytes:   cfg.Limits.MaxEntryBytes,
		RetryAttempts:   cfg.Retry.Attempts,
		RetryBaseDelay:  time.Duration(cfg.Retry.BaseDelay),
		RetentionWindow: time.Duration(cfg.Retention.Window),
	})
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return auditLog, cfg, nil
}

// openStore builds the store selected by storage.backend.
func openStore(ctx context.Context, cfg *config.Config) (audit.Store, error) {
	switch cfg.Storage.Backend {
	case "file":
		return filelog.Open(cfg.Storage.Dir)
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory %s: %w", cfg.Storage.Dir, err)
		}
		return sqlite.Open(filepath.Join(cfg.Storage.Dir, "chainlog.db"))
	case "postgres":
		return postgres.New(ctx, cfg.Storage.DSN, cfg.Storage.MaxConns)
	case "memory":
		return audit.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ============================================================================
// chainlog record - Append one event
// ============================================================================

// Record event flags. Everything except --action is optional; the normalizer
// fills gaps (action from method+path, resource from path, outcome from
// status code) rather than rejecting a partial event.
var (
	recordUserID     string
	recordUsername   string
	recordAction     string
	recordResource   string
	recordResourceID string
	recordMethod     string
	recordPath       string
	recordStatus     string
	recordStatusCode int
	recordError      string
	recordIP         string
	recordBody       string
	recordMeta       string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Append one event to the audit trail",
	Long: `Append one event to the audit trail. The event is normalized, sensitive
fields are redacted per the configured policy, and the entry is hash-chained
and durably written before the receipt is printed.

The body must be a JSON document. Pass it inline with --body, or use
--body - to read it from stdin.

Examples:
  chainlog record --action login --user u-17 --username alice --ip 10.0.0.9
  chainlog record --action update --resource orders --resource-id 42 \
      --body '{"status":"shipped"}'
  cat release.json | chainlog record --action deploy --resource releases --body -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd, args)
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordUserID, "user", "", "Acting user ID")
	recordCmd.Flags().StringVar(&recordUsername, "username", "", "Acting username")
	recordCmd.Flags().StringVar(&recordAction, "action", "", "Semantic action verb (create, update, delete, login, ...)")
	recordCmd.Flags().StringVar(&recordResource, "resource", "", "Resource type acted on")
	recordCmd.Flags().StringVar(&recordResourceID, "resource-id", "", "Identifier of the specific resource")
	recordCmd.Flags().StringVar(&recordMethod, "method", "", "HTTP method, if the event came from a request")
	recordCmd.Flags().StringVar(&recordPath, "path", "", "Request path, if the event came from a request")
	recordCmd.Flags().StringVar(&recordStatus, "status", "", "Outcome: success or failure (derived when empty)")
	recordCmd.Flags().IntVar(&recordStatusCode, "status-code", 0, "HTTP status code")
	recordCmd.Flags().StringVar(&recordError, "error", "", "Error message for failed actions")
	recordCmd.Flags().StringVar(&recordIP, "ip", "", "Client IP address")
	recordCmd.Flags().StringVar(&recordBody, "body", "", "JSON payload, or - to read from stdin")
	recordCmd.Flags().StringVar(&recordMeta, "meta", "", "JSON object with free-form metadata")
	recordCmd.MarkFlagRequired("action")
}

// runRecord builds a raw event from the flags and appends it.
func runRecord(cmd *cobra.Command, args []string) error {
	raw := audit.RawEvent{
		UserID:     recordUserID,
		Username:   recordUsername,
		Action:     recordAction,
		Resource:   recordResource,
		ResourceID: recordResourceID,
		Method:     recordMethod,
		Path:       recordPath,
		Status:     recordStatus,
		StatusCode: recordStatusCode,
		Error:      recordError,
		IPAddress:  recordIP,
	}

	if recordBody != "" {
		data := []byte(recordBody)
		if recordBody == "-" {
			stdin, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read body from stdin: %w", err)
			}
			data = stdin
		}
		if err := json.Unmarshal(data, &raw.Body); err != nil {
			return fmt.Errorf("body is not valid JSON: %w", err)
		}
	}
	if recordMeta != "" {
		if err := json.Unmarshal([]byte(recordMeta), &raw.Metadata); err != nil {
			return fmt.Errorf("meta is not a valid JSON object: %w", err)
		}
	}

	auditLog, _, err := openLog(cmd.Context())
	if err != nil {
		return err
	}
	defer auditLog.Close()

	receipt, err := auditLog.Append(cmd.Context(), raw)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	fmt.Printf("[chainlog] Recorded entry #%d\n", receipt.Index)
	fmt.Printf("  id:   %s\n", receipt.ID)
	fmt.Printf("  hash: %s\n", receipt.Hash)
	return nil
}

// ============================================================================
// chainlog tail - Show recent entries
// ============================================================================

// tailFollow enables real-time following of new entries (-f flag).
var tailFollow bool

// tailLimit controls how many recent entries to show.
var tailLimit int

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent audit entries",
	Long: `Show the most recent audit entries in chain order. Use -f to keep the log
open and print new entries as they are committed (like tail -f).

While following, edits to the config file apply live: changes to the redact
and retention sections take effect without a restart. Digest and storage
changes still require one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTail(cmd, args)
	},
}

func init() {
	tailCmd.Flags().BoolVarP(&tailFollow, "follow", "f", false, "Follow new entries in real-time")
	tailCmd.Flags().IntVarP(&tailLimit, "limit", "n", 20, "Number of recent entries to show")
}

// runTail prints the newest entries and optionally follows the chain.
func runTail(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	auditLog, _, err := openLog(ctx)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	entries, err := auditLog.Tail(ctx, tailLimit)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	for _, e := range entries {
		printEntry(e)
	}

	if !tailFollow {
		return nil
	}

	// Hot-reload the redaction and retention settings of this resident
	// process when the config file changes, the same wiring a long-running
	// embedder would use. Following works fine without it.
	watcher, err := config.NewWatcher(configPath, config.WatchTargets{
		OnRedactChange: func(rc config.RedactConfig) {
			if err := auditLog.SetRedaction(rc.Fields, rc.Marker, rc.MaxDepth); err != nil {
				slog.Warn("redaction update rejected", "error", err)
			}
		},
		OnRetentionChange: func(window time.Duration) {
			auditLog.SetRetentionWindow(window)
		},
	})
	if err != nil {
		slog.Warn("config watcher unavailable, live reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	after := int64(-1)
	if len(entries) > 0 {
		after = entries[len(entries)-1].Index
	}
	if err := auditLog.Follow(ctx, after, printEntry); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// ============================================================================
// chainlog query - Filtered reads
// ============================================================================

// Query filter flags.
var (
	queryActor    string
	queryAction   string
	queryResource string
	queryStatus   string
	queryIP       string
	querySince    string
	queryUntil    string
	queryLimit    int
	queryOffset   int
	queryDesc     bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit entries with filters",
	Long: `Query the audit trail with filters. Filters combine with AND. --since and
--until accept either an RFC 3339 timestamp or a relative duration such as
"24h", meaning that long before now. Both bounds are inclusive.

Examples:
  chainlog query --actor alice --action delete --since 24h
  chainlog query --resource orders --status failure --limit 100
  chainlog query --since 2026-08-01T00:00:00Z --until 2026-08-21T00:00:00Z`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, args)
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryActor, "actor", "", "Filter by user ID or username")
	queryCmd.Flags().StringVar(&queryAction, "action", "", "Filter by action")
	queryCmd.Flags().StringVar(&queryResource, "resource", "", "Filter by resource type")
	queryCmd.Flags().StringVar(&queryStatus, "status", "", "Filter by outcome (success/failure)")
	queryCmd.Flags().StringVar(&queryIP, "ip", "", "Filter by client IP address")
	queryCmd.Flags().StringVar(&querySince, "since", "", "Lower time bound (RFC 3339 or duration like 24h)")
	queryCmd.Flags().StringVar(&queryUntil, "until", "", "Upper time bound (RFC 3339 or duration like 1h)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 50, "Maximum number of entries to return (0 for all)")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "Number of matching entries to skip")
	queryCmd.Flags().BoolVar(&queryDesc, "desc", false, "Newest entries first")
}

// runQuery translates the flags into a filter and prints the matches.
func runQuery(cmd *cobra.Command, args []string) error {
	from, err := parseTimeFlag(querySince)
	if err != nil {
		return fmt.Errorf("invalid --since: %w", err)
	}
	to, err := parseTimeFlag(queryUntil)
	if err != nil {
		return fmt.Errorf("invalid --until: %w", err)
	}

	auditLog, _, err := openLog(cmd.Context())
	if err != nil {
		return err
	}
	defer auditLog.Close()

	entries, err := auditLog.Query(cmd.Context(), audit.Filter{
		Actor:      queryActor,
		Action:     queryAction,
		Resource:   queryResource,
		Status:     queryStatus,
		IP:         queryIP,
		From:       from,
		To:         to,
		Limit:      queryLimit,
		Offset:     queryOffset,
		Descending: queryDesc,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No matching audit entries found.")
		return nil
	}

	for _, e := range entries {
		printEntry(e)
	}
	fmt.Printf("\n%d entries found.\n", len(entries))
	return nil
}

// parseTimeFlag converts a --since/--until value into a canonical timestamp.
// Values containing a 'T' are parsed as RFC 3339; everything else is parsed
// as a duration and anchored that far before now.
func parseTimeFlag(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if strings.Contains(s, "T") {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return "", fmt.Errorf("not an RFC 3339 timestamp: %q", s)
		}
		return audit.FormatTime(t), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return "", fmt.Errorf("not a duration: %q", s)
	}
	return audit.FormatTime(time.Now().Add(-d)), nil
}

// ============================================================================
// chainlog verify - Recompute and check the hash chain
// ============================================================================

// verifyFull scans the whole chain instead of stopping at the first failure.
var verifyFull bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify hash chain integrity",
	Long: `Verify the integrity of the audit trail. Every entry is read back from
storage, its hash is recomputed from its contents, and the link to the
previous entry is checked, starting from the genesis anchor.

By default verification stops at the first failure. Use --full to scan the
entire chain and report every broken entry, which shows whether damage is
isolated or widespread.

Exits non-zero when the chain is broken.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd, args)
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyFull, "full", false, "Report every failing entry instead of stopping at the first")
}

// runVerify runs the integrity scan and renders the result.
func runVerify(cmd *cobra.Command, args []string) error {
	auditLog, _, err := openLog(cmd.Context())
	if err != nil {
		return err
	}
	defer auditLog.Close()

	mode := audit.VerifyFast
	if verifyFull {
		mode = audit.VerifyFull
	}

	result, err := auditLog.Verify(cmd.Context(), mode)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	if result.OK {
		fmt.Printf("[chainlog] Chain VALID (%d entries verified)\n", result.Checked)
		return nil
	}

	fmt.Printf("[chainlog] Chain BROKEN at entry #%d\n", result.FirstFailure)
	for _, f := range result.Failures {
		fmt.Printf("  entry #%d: %s\n", f.Index, f.Reason)
		if f.Expected != "" {
			fmt.Printf("    expected: %s\n", f.Expected)
			fmt.Printf("    actual:   %s\n", f.Actual)
		}
	}
	return result.Failures[0].Violation()
}

// ============================================================================
// chainlog prove - Merkle inclusion proof for one entry
// ============================================================================

var proveCmd = &cobra.Command{
	Use:   "prove <index>",
	Short: "Build and check a Merkle inclusion proof",
	Long: `Build a Merkle inclusion proof for the entry at the given index and check
it against the current tree head. The proof is printed to stdout as JSON;
the verification result goes to stderr, so the proof can be piped to a file.

A proof is bound to the tree head it was built from. After more entries are
appended the tree grows and old proofs stop verifying; fetch a fresh one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProve(cmd, args)
	},
}

// runProve emits the proof for one index and verifies it before exiting.
func runProve(cmd *cobra.Command, args []string) error {
	index, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid index %q", args[0])
	}

	auditLog, _, err := openLog(cmd.Context())
	if err != nil {
		return err
	}
	defer auditLog.Close()

	proof, err := auditLog.ProveInclusion(cmd.Context(), index)
	if err != nil {
		return fmt.Errorf("failed to build proof: %w", err)
	}
	head, err := auditLog.TreeHead(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to compute tree head: %w", err)
	}
	entries, err := auditLog.Query(cmd.Context(), audit.Filter{MinIndex: index, Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to load entry #%d: %w", index, err)
	}
	if len(entries) == 0 || entries[0].Index != index {
		return fmt.Errorf("entry #%d not found", index)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(proof); err != nil {
		return fmt.Errorf("failed to write proof: %w", err)
	}

	if !auditLog.VerifyProof(index, &entries[0], proof, head) {
		return fmt.Errorf("proof for entry #%d does not verify against the current tree head", index)
	}
	fmt.Fprintf(os.Stderr, "[chainlog] Proof verified (tree size %d, root %s)\n", head.Size, head.Root)
	return nil
}

// ============================================================================
// chainlog head - Print the chain head
// ============================================================================

var headCmd = &cobra.Command{
	Use:   "head",
	Short: "Print the chain head index and hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		auditLog, _, err := openLog(cmd.Context())
		if err != nil {
			return err
		}
		defer auditLog.Close()

		index, hash := auditLog.Head()
		if index < 0 {
			fmt.Println("Chain is empty.")
			fmt.Printf("Genesis: %s\n", auditLog.Genesis())
			return nil
		}
		fmt.Printf("Head index: %d\n", index)
		fmt.Printf("Head hash:  %s\n", hash)
		fmt.Printf("Genesis:    %s\n", auditLog.Genesis())
		return nil
	},
}

// ============================================================================
// chainlog export - Dump the chain
// ============================================================================

// exportFormat controls the output format (json, jsonl, csv).
var exportFormat string

// exportOutput is the destination file; empty means stdout.
var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit trail",
	Long: `Export the full chain in the given format. json is an indented array, jsonl
is one entry per line (the file backend's native encoding), csv has a header
row with payloads embedded as JSON.

Examples:
  chainlog export --format csv --output audit.csv
  chainlog export --format json | jq '.[].action'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, args)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "jsonl", "Export format: json, jsonl, csv")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")
}

// runExport streams the chain to stdout or the --output file.
func runExport(cmd *cobra.Command, args []string) error {
	auditLog, _, err := openLog(cmd.Context())
	if err != nil {
		return err
	}
	defer auditLog.Close()

	out := io.Writer(os.Stdout)
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOutput, err)
		}
		defer f.Close()
		out = f
	}

	if err := auditLog.Export(cmd.Context(), out, exportFormat); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if exportOutput != "" {
		fmt.Printf("[chainlog] Exported chain to %s\n", exportOutput)
	}
	return nil
}

// ============================================================================
// chainlog retention - List archive-eligible entries
// ============================================================================

// retentionWindow overrides the configured retention window.
var retentionWindow time.Duration

// retentionCount prints only the number of eligible entries.
var retentionCount bool

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "List entries old enough to archive",
	Long: `List entries older than the retention window, oldest first. This is a
classification only: chainlog never deletes entries, because removing them
would break the hash chain. Feed the output to an external archival process
and keep the originals.

The window defaults to retention.window from the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRetention(cmd, args)
	},
}

func init() {
	retentionCmd.Flags().DurationVar(&retentionWindow, "window", 0, "Age threshold (e.g. 720h); 0 matches everything")
	retentionCmd.Flags().BoolVar(&retentionCount, "count", false, "Print only the number of eligible entries")
}

// runRetention reports which entries have aged past the window.
func runRetention(cmd *cobra.Command, args []string) error {
	auditLog, _, err := openLog(cmd.Context())
	if err != nil {
		return err
	}
	defer auditLog.Close()

	window := retentionWindow
	if !cmd.Flags().Changed("window") {
		window = auditLog.RetentionWindow()
	}

	if retentionCount {
		n, err := auditLog.ArchiveEligibleCount(cmd.Context(), window)
		if err != nil {
			return fmt.Errorf("retention count failed: %w", err)
		}
		fmt.Println(n)
		return nil
	}

	entries, err := auditLog.FindArchiveEligible(cmd.Context(), window)
	if err != nil {
		return fmt.Errorf("retention scan failed: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No entries are old enough to archive.")
		return nil
	}
	for _, e := range entries {
		printEntry(e)
	}
	fmt.Printf("\n%d entries eligible for archival (older than %s).\n", len(entries), window)
	return nil
}

// ============================================================================
// chainlog init-config - Write the default config file
// ============================================================================

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default config file",
	Long: `Write a commented default configuration to the --config path (default
~/.chainlog/config.yaml). Refuses to overwrite an existing file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			fmt.Printf("Config already exists at %s\n", configPath)
			fmt.Println("Edit it directly, or remove it and rerun to regenerate the defaults.")
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("failed to write default config: %w", err)
		}
		fmt.Printf("[chainlog] Wrote default config to %s\n", configPath)
		fmt.Println("Review the storage section, then record your first entry:")
		fmt.Println("  chainlog record --action login --username alice")
		return nil
	},
}

// ============================================================================
// Output helpers
// ============================================================================

// printEntry renders one entry as a single aligned line.
func printEntry(e audit.Entry) {
	actor := e.Username
	if actor == "" {
		actor = e.UserID
	}
	if actor == "" {
		actor = "-"
	}

	resource := e.Resource
	if e.ResourceID != "" {
		resource += "/" + e.ResourceID
	}

	status := e.Status
	// Uppercase failures for terminal visibility.
	if status == audit.StatusFailure {
		status = "FAILURE"
	}

	fmt.Printf("[%s] #%-6d actor=%-12s action=%-10s resource=%-20s status=%s\n",
		e.Timestamp, e.Index, actor, e.Action, resource, status)
}
