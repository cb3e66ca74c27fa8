// Package sweep completes every locale target against the base target's key
// inventory: keys the base has and a target lacks are added with an empty
// value so editors can see what still needs translating.
package sweep

import (
	"context"
	"fmt"

	"github.com/reqsercom/snippetsync/locales"
	"github.com/reqsercom/snippetsync/logger"
	"github.com/reqsercom/snippetsync/reconcile"
	"github.com/reqsercom/snippetsync/reporter"
	"github.com/reqsercom/snippetsync/store"
)

// Result counts what a sweep did.
type Result struct {
	Targets  int
	Inserted int
	Failed   int
}

// Sweeper inserts blank placeholders for missing keys.
type Sweeper struct {
	repo   *store.Repo
	engine *reconcile.Engine
	rep    reporter.Reporter
	log    *logger.Logger
}

func New(repo *store.Repo, engine *reconcile.Engine, rep reporter.Reporter, log *logger.Logger) *Sweeper {
	return &Sweeper{
		repo:   repo,
		engine: engine,
		rep:    rep,
		log:    log.With("component", "sweep"),
	}
}

// Run sweeps every non-base target of snap. Without a base target there is
// nothing to complete against and Run returns an empty result.
func (s *Sweeper) Run(ctx context.Context, snap *locales.Snapshot) Result {
	var res Result

	base := snap.BaseID()
	if base == "" {
		s.log.Warn("no base locale target, skipping completion sweep")
		return res
	}

	baseKeys, err := s.repo.Keys(ctx, base)
	if err != nil {
		err = fmt.Errorf("listing keys of base target %s: %w", base, err)
		s.log.Error("completion sweep aborted", "target", base, "error", err)
		s.rep.Report(ctx, reporter.StoreWrite, err)
		res.Failed++
		return res
	}
	if len(baseKeys) == 0 {
		s.log.Info("base target has no keys, nothing to complete", "target", base)
		return res
	}

	for _, target := range snap.Others() {
		res.Targets++
		have, err := s.repo.Keys(ctx, target)
		if err != nil {
			err = fmt.Errorf("listing keys of target %s: %w", target, err)
			s.log.Error("skipping target in completion sweep", "target", target, "error", err)
			s.rep.Report(ctx, reporter.StoreWrite, err)
			res.Failed++
			continue
		}

		missing := Missing(baseKeys, have)
		for _, key := range missing {
			ok, err := s.engine.Placeholder(ctx, key, target)
			if err != nil {
				s.log.Error("placeholder not written", "key", key, "target", target, "error", err)
				s.rep.Report(ctx, reporter.StoreWrite, err)
				res.Failed++
				continue
			}
			if ok {
				res.Inserted++
			}
		}
		if len(missing) > 0 {
			s.log.Info("target completed", "target", target, "missing", len(missing))
		}
	}
	return res
}

// Missing returns the keys of base that are not in have, in base order.
func Missing(base, have []string) []string {
	present := make(map[string]bool, len(have))
	for _, k := range have {
		present[k] = true
	}
	var out []string
	for _, k := range base {
		if !present[k] {
			out = append(out, k)
		}
	}
	return out
}
