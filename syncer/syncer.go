// Package syncer runs one full synchronization: load the locale targets,
// walk the resource tree, reconcile every key into the store and finally
// complete every target against the base target.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/reqsercom/snippetsync/locales"
	"github.com/reqsercom/snippetsync/logger"
	"github.com/reqsercom/snippetsync/reconcile"
	"github.com/reqsercom/snippetsync/reporter"
	"github.com/reqsercom/snippetsync/resource"
	"github.com/reqsercom/snippetsync/runstate"
	"github.com/reqsercom/snippetsync/store"
	"github.com/reqsercom/snippetsync/sweep"
	"github.com/reqsercom/snippetsync/walker"
)

// ErrConfigRead marks the only failure that aborts a run: the locale
// targets (or the settings needed to walk the tree) could not be read.
var ErrConfigRead = errors.New("config read error")

// Options wires a Job.
type Options struct {
	Root       string
	Extensions []string
	Exclude    []string
	Author     string

	Locales  locales.Source
	Repo     *store.Repo
	Reporter reporter.Reporter
	Log      *logger.Logger

	// StateDir, when set, receives the run state file after every run.
	StateDir string
	// Clock overrides time.Now for entry timestamps.
	Clock func() time.Time
}

// Job is a configured sync run. It takes no arguments once built and can be
// run any number of times.
type Job struct {
	root     string
	exclude  []string
	matcher  resource.Matcher
	locales  locales.Source
	engine   *reconcile.Engine
	sweeper  *sweep.Sweeper
	reporter reporter.Reporter
	stateDir string
	log      *logger.Logger
}

func New(opts Options) *Job {
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}
	rep := opts.Reporter
	if rep == nil {
		rep = reporter.Nop{}
	}
	engine := reconcile.New(opts.Repo, opts.Author, log)
	if opts.Clock != nil {
		engine.WithClock(opts.Clock)
	}
	return &Job{
		root:     opts.Root,
		exclude:  opts.Exclude,
		matcher:  resource.NewMatcher(opts.Extensions),
		locales:  opts.Locales,
		engine:   engine,
		sweeper:  sweep.New(opts.Repo, engine, rep, log),
		reporter: rep,
		stateDir: opts.StateDir,
		log:      log.With("component", "syncer"),
	}
}

// Execute performs one run and swallows every outcome. It never panics.
func (j *Job) Execute(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Error("sync run panicked", "panic", r)
		}
	}()
	if _, err := j.Run(ctx); err != nil {
		j.log.Error("sync run aborted", "error", err)
	}
}

// Run performs one run. The returned error is non-nil only for a fatal
// failure and then wraps ErrConfigRead; every other failure is isolated,
// logged, reported and counted in the report.
func (j *Job) Run(ctx context.Context) (Report, error) {
	rep := Report{
		RunID:   uuid.NewString(),
		Root:    j.root,
		Started: time.Now().UTC(),
	}
	log := j.log.With("run", rep.RunID)
	if r, ok := j.reporter.(interface{ ResetLimit() }); ok {
		r.ResetLimit()
	}

	fatal := func(err error) (Report, error) {
		err = fmt.Errorf("%w: %v", ErrConfigRead, err)
		log.Error("sync run aborted", "error", err)
		j.reporter.Report(ctx, reporter.ConfigRead, err)
		rep.Finished = time.Now().UTC()
		j.saveState(rep, err)
		return rep, err
	}

	snap, err := locales.Load(ctx, j.locales, log)
	if err != nil {
		return fatal(err)
	}
	w, err := walker.New(j.root, j.exclude, log)
	if err != nil {
		return fatal(err)
	}
	w.OnError = func(path string, err error) {
		j.reporter.Report(ctx, reporter.DirectoryAccess, err)
	}

	log.Info("sync run started", "root", j.root)

	rep.Dirs = w.Walk(ctx, func(ctx context.Context, d walker.Dir) error {
		for _, path := range d.Files {
			j.file(ctx, log, snap, &rep, path)
		}
		return nil
	})

	rep.Sweep = j.sweeper.Run(ctx, snap)

	rep.Finished = time.Now().UTC()
	log.Info("sync run finished",
		"duration", rep.Duration(),
		"dirs", rep.Dirs.Visited,
		"files", rep.FilesParsed,
		"keys", rep.KeysSeen,
		"inserted", rep.Inserted,
		"refreshed", rep.Refreshed,
		"placeholders", rep.Sweep.Inserted,
		"failures", rep.Failures(),
	)
	j.saveState(rep, nil)
	return rep, nil
}

// file processes one candidate file. A parse failure or a panic skips the
// file only.
func (j *Job) file(ctx context.Context, log *logger.Logger, snap *locales.Snapshot, rep *Report, path string) {
	code, ext, ok := j.matcher.Match(filepath.Base(path))
	if !ok {
		return
	}
	rel := j.rel(path)
	flog := log.With("path", rel)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("processing %s: panic: %v", rel, r)
			rep.FilesFailed++
			flog.Error("file skipped", "error", err)
			j.reporter.Report(ctx, reporter.FileParse, err)
		}
	}()

	f, err := resource.ParseFile(path, code, ext)
	if err != nil {
		rep.FilesFailed++
		flog.Error("file skipped", "error", err)
		j.reporter.Report(ctx, reporter.FileParse, err)
		return
	}
	if f.Blank {
		rep.FilesBlank++
		return
	}
	rep.FilesParsed++

	for _, s := range f.Skipped {
		rep.KeysSkipped++
		flog.Warn("skipping key with non-string value", "key", s.Key, "type", s.Type)
	}

	targets, ok := snap.Resolve(code)
	if !ok {
		rep.FilesUnmapped++
		rep.KeysUnmapped += len(f.Pairs)
		flog.Warn("no locale target for file locale, keys skipped", "locale", code, "keys", len(f.Pairs))
		return
	}

	meta := map[string]any{"source": rel, "locale": code}
	for _, p := range f.Pairs {
		rep.KeysSeen++
		for _, target := range targets {
			out, err := j.reconcile(ctx, p, target, meta)
			if err != nil {
				rep.WriteFailed++
				flog.Error("entry not written", "key", p.Key, "target", target, "error", err)
				j.reporter.Report(ctx, reporter.StoreWrite, err)
				continue
			}
			rep.count(out)
		}
	}
}

func (j *Job) reconcile(ctx context.Context, p resource.Pair, target string, meta map[string]any) (out reconcile.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconciling %s for %s: panic: %v", p.Key, target, r)
		}
	}()
	return j.engine.Reconcile(ctx, p.Key, p.Value, target, meta)
}

func (j *Job) saveState(rep Report, fatal error) {
	if j.stateDir == "" {
		return
	}
	st, err := runstate.Load(j.stateDir)
	if err != nil {
		j.log.Warn("run state not loaded, starting a new one", "error", err)
		st = runstate.New(j.stateDir)
	}
	st.Record(rep.Run(fatal))
	if err := st.Save(); err != nil {
		j.log.Warn("run state not saved", "path", st.Path(), "error", err)
	}
}

func (j *Job) rel(path string) string {
	rel, err := filepath.Rel(j.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
