// snippetsync loads translation snippets from resource files into a shared
// translation store and keeps every locale target complete.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"
	"golang.org/x/sync/singleflight"

	"github.com/reqsercom/snippetsync/i18n"
	"github.com/reqsercom/snippetsync/locales"
	"github.com/reqsercom/snippetsync/runlock"
	"github.com/reqsercom/snippetsync/runstate"
	"github.com/reqsercom/snippetsync/store"
	"github.com/reqsercom/snippetsync/syncer"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir    string
	configPath string
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "snippetsync",
		Short: i18n.T("Sync translation snippets from resource files into the translation store"),
		Long: i18n.T(`snippetsync walks a directory tree for resource files named
<name>.<locale>.<ext> (JSON or YAML), flattens their keys and writes them into
the shared translation table for every locale target using that locale.

Entries edited by anyone else are never touched. After every run, each locale
target receives an empty placeholder for every key the base target has.

Commands:
  sync      Run once now
  serve     Run on a cron schedule until interrupted
  status    Show per-target key counts and the last run
  version   Show version information`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&rootDir, "root", "", i18n.T("Resource root directory (overrides the config file)"))
	root.PersistentFlags().StringVar(&configPath, "config", "", i18n.T("Config file (default <root>/.snippetsync.yaml)"))

	root.AddCommand(
		newSyncCmd(),
		newServeCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: i18n.T("Show version information"),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("snippetsync version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// sync (one run now)
// ---------------------------------------------------------------------------

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: i18n.T("Run one synchronization now"),
		Long: i18n.T(`Run one synchronization over the resource root and print a summary.

Failures in single directories, files or keys are logged and reported but do
not change the exit status. Only a configuration that cannot be read aborts
the run with exit status 1.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(context.Background())
		},
	}
}

func runSync(ctx context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	logInfo("%s", i18n.T("Syncing %s", a.root))
	rep, err := a.job.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(rep)
	return nil
}

func printSummary(rep syncer.Report) {
	fmt.Fprintf(os.Stderr, "\n%s%s%s\n", colorBlue, i18n.T("Sync summary"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 52))
	row := func(label, value string) {
		fmt.Fprintf(os.Stderr, "  %-14s%s\n", label, value)
	}
	row(i18n.T("Directories"), i18n.T("%d visited, %d excluded, %d failed", rep.Dirs.Visited, rep.Dirs.Excluded, rep.Dirs.Failed))
	row(i18n.T("Files"), i18n.T("%d parsed, %d blank, %d failed, %d unmapped", rep.FilesParsed, rep.FilesBlank, rep.FilesFailed, rep.FilesUnmapped))
	row(i18n.T("Keys"), i18n.T("%d seen, %d skipped, %d unmapped", rep.KeysSeen, rep.KeysSkipped, rep.KeysUnmapped))
	row(i18n.T("Entries"), i18n.T("%d inserted, %d refreshed, %d unchanged", rep.Inserted, rep.Refreshed, rep.Unchanged))
	row(i18n.T("Left alone"), i18n.T("%d edited elsewhere, %d settled", rep.Protected, rep.Settled))
	row(i18n.T("Placeholders"), i18n.T("%d added in %d targets", rep.Sweep.Inserted, rep.Sweep.Targets))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 52))

	if n := rep.Failures(); n > 0 {
		logWarning("%s", i18n.N("Finished in %s with %d failure (see log)", "Finished in %s with %d failures (see log)", n, rep.Duration().Round(time.Millisecond), n))
		return
	}
	logSuccess("%s", i18n.N("Finished in %s, %d row written", "Finished in %s, %d rows written", rep.Writes(), rep.Duration().Round(time.Millisecond), rep.Writes()))
}

// ---------------------------------------------------------------------------
// serve (scheduled runs)
// ---------------------------------------------------------------------------

func newServeCmd() *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: i18n.T("Run synchronizations on the configured schedule"),
		Long: i18n.T(`Run synchronizations on the cron schedule from the config file
(default @daily) until SIGINT or SIGTERM.

Ticks that fire while a run is still going are folded into that run. With
lock.redis_addr set, a Redis lease keeps other snippetsync processes from
running at the same time.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, now)
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, i18n.T("Run once immediately on start"))

	return cmd
}

// scheduler runs the job at most once at a time.
type scheduler struct {
	app    *app
	locker runlock.Locker
	group  singleflight.Group
}

// tick runs the job unless a run is already in progress here or elsewhere.
func (s *scheduler) tick(ctx context.Context) {
	_, _, shared := s.group.Do("sync", func() (interface{}, error) {
		release, ok, err := s.locker.Acquire(ctx)
		if err != nil {
			s.app.log.Warn("run lease unavailable, skipping scheduled run", "error", err)
			return nil, nil
		}
		if !ok {
			s.app.log.Info("another process holds the run lease, skipping scheduled run")
			return nil, nil
		}
		defer release()

		// A run that has started completes even when serve is stopping.
		s.app.job.Execute(context.WithoutCancel(ctx))
		return nil, nil
	})
	if shared {
		s.app.log.Debug("scheduled run joined a run already in progress")
	}
}

func runServe(ctx context.Context, now bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s := &scheduler{app: a, locker: runlock.Nop{}}
	if addr := a.cfg.Lock.RedisAddr; addr != "" {
		l, err := runlock.NewRedis(addr, a.cfg.Lock.Key, a.cfg.Lock.TTL, a.log)
		if err != nil {
			return fmt.Errorf("run lease: %w", err)
		}
		defer l.Close()
		s.locker = l
	}

	c := cron.New()
	if err := c.AddFunc(a.cfg.Schedule, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("%w: invalid schedule %q: %v", syncer.ErrConfigRead, a.cfg.Schedule, err)
	}

	logInfo("%s", i18n.T("Serving %s on schedule %q", a.root, a.cfg.Schedule))
	if now {
		s.tick(ctx)
	}

	c.Start()
	<-ctx.Done()
	logWarning("%s", i18n.T("Interrupted, stopping scheduler..."))
	c.Stop()

	// Wait for a run that is still going.
	s.group.Do("sync", func() (interface{}, error) { return nil, nil })
	return nil
}

// ---------------------------------------------------------------------------
// status (read-only: per-target stats + last run)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: i18n.T("Show per-target key counts and the last run"),
		Long: i18n.T(`Show the number of keys per locale target, how many carry a value,
how many are still owned by snippetsync and the coverage relative to the base
target. Also shows the last recorded run. Does not modify anything.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(os.Stderr, "\n%s%s%s\n", colorBlue, i18n.T("Project"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  %-12s%s\n", i18n.T("Root:"), a.root)
	fmt.Fprintf(os.Stderr, "  %-12s%s (%s)\n", i18n.T("Store:"), a.cfg.Database.Driver, redactDSN(a.cfg.Database.DSN))
	fmt.Fprintf(os.Stderr, "  %-12s%s\n", i18n.T("Locales:"), a.cfg.Locales.Source)
	fmt.Fprintf(os.Stderr, "  %-12s%s\n", i18n.T("Author:"), a.cfg.Author)
	fmt.Fprintln(os.Stderr)

	snap, err := locales.Load(ctx, a.source, a.log)
	if err != nil {
		return fmt.Errorf("%w: %v", syncer.ErrConfigRead, err)
	}
	stats, err := a.repo.Stats(ctx, a.cfg.Author)
	if err != nil {
		return fmt.Errorf("reading store statistics: %w", err)
	}
	showStatsTable(snap, stats)
	showLastRun(a.cfg.DataDir)
	return nil
}

func showStatsTable(snap *locales.Snapshot, stats []store.TargetStats) {
	byTarget := make(map[string]store.TargetStats, len(stats))
	for _, s := range stats {
		byTarget[s.TargetID] = s
	}
	base := snap.BaseID()
	baseTotal := byTarget[base].Total

	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorBlue, i18n.T("Locale targets"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "\n%-12s %-8s %-7s %-7s %-7s %s\n",
		i18n.T("Target"), i18n.T("Code"), i18n.T("Keys"), i18n.T("Filled"), i18n.T("Owned"), i18n.T("Coverage"))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	ids := snap.IDs()
	if len(ids) == 0 {
		logInfo("%s", i18n.T("No enabled locale targets configured."))
		return
	}
	for _, id := range ids {
		t, _ := snap.Target(id)
		s := byTarget[id]
		name := id
		if id == base {
			name += "*"
		}
		total := baseTotal
		if total == 0 {
			total = s.Total
		}
		fmt.Fprintf(os.Stderr, "%-12s %-8s %-7d %-7d %-7d %s\n",
			name, t.Code, s.Total, s.Filled, s.Owned, progressBar(coverage(s.Filled, total), 20))
	}
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	if base == "" {
		logWarning("%s", i18n.T("No base target configured; placeholders are not created."))
	} else {
		fmt.Fprintf(os.Stderr, "%s\n", i18n.T("* base target, %d keys", baseTotal))
	}
	fmt.Fprintln(os.Stderr)
}

func showLastRun(dataDir string) {
	st, err := runstate.Load(dataDir)
	if err != nil {
		logWarning("%s", i18n.T("Run state unreadable: %v", err))
		return
	}
	last, ok := st.Last()
	if !ok {
		logInfo("%s", i18n.T("No run recorded yet. Run 'snippetsync sync'."))
		return
	}

	when := last.Finished.Local().Format("2006-01-02 15:04:05")
	if !last.OK() {
		logError("%s", i18n.T("Last run %s failed: %s", when, last.Fatal))
		return
	}
	msg := i18n.T("Last run %s took %s: %d inserted, %d refreshed, %d placeholders, %d failures",
		when, last.Duration().Round(time.Millisecond),
		last.Counts["inserted"], last.Counts["refreshed"], last.Counts["sweep_inserted"], last.Failures)
	if last.Failures > 0 {
		logWarning("%s", msg)
		return
	}
	logSuccess("%s", msg)
}

// coverage returns n as a percentage of total.
func coverage(n, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(n * 100 / total)
}

// progressBar renders percent as a coloured bar of width cells followed by
// the number.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100

	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 50:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset + fmt.Sprintf(" %3d%%", percent)
}

// redactDSN hides the password of a URL-style DSN.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return redactKeyValueDSN(dsn)
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return dsn
	}
	return scheme + "://" + user + ":***@" + host
}

func redactKeyValueDSN(dsn string) string {
	if !strings.Contains(dsn, "password=") {
		return dsn
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}
