// Package locales loads the set of locale targets a sync run writes to and
// freezes it into an immutable Snapshot.
//
// A locale target is a locale-scoped destination for translation entries
// (for example one storefront's language). Several targets may share one ISO
// code; a file declaring that code fans out to all of them. Exactly one
// target is expected to carry the base flag: its key inventory is the one
// every other target is completed against.
package locales

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/reqsercom/snippetsync/logger"
)

// Target is a single configured locale target.
type Target struct {
	ID      string
	Code    string
	Base    bool
	Enabled bool
}

// Source supplies the configured locale targets.
type Source interface {
	Targets(ctx context.Context) ([]Target, error)
}

// Static is a Source backed by an in-memory list.
type Static []Target

func (s Static) Targets(context.Context) ([]Target, error) {
	out := make([]Target, len(s))
	copy(out, s)
	return out, nil
}

// Snapshot is the immutable code -> target mapping for one run.
type Snapshot struct {
	byCode  map[string][]string
	byCanon map[string][]string
	targets map[string]Target
	order   []string
	bases   []string
}

// Load reads all targets from src and builds a Snapshot. A read failure is
// returned as is; callers treat it as fatal for the run.
func Load(ctx context.Context, src Source, log *logger.Logger) (*Snapshot, error) {
	targets, err := src.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading locale targets: %w", err)
	}

	snap := Build(targets)

	for _, t := range targets {
		if strings.TrimSpace(t.ID) == "" || strings.TrimSpace(t.Code) == "" {
			log.Warn("ignoring locale target without id or code", "id", t.ID, "code", t.Code)
		}
	}
	switch len(snap.bases) {
	case 0:
		log.Warn("no enabled base locale target configured; completion sweep will be skipped")
	case 1:
	default:
		log.Warn("several base locale targets configured; using the first", "base", snap.bases[0], "candidates", snap.bases)
	}
	log.Info("locale targets loaded", "targets", len(snap.order), "codes", len(snap.byCode), "base", snap.BaseID())

	return snap, nil
}

// Build creates a Snapshot from enabled targets. Targets without an id or a
// code are dropped, as are repeated ids (first one wins).
func Build(targets []Target) *Snapshot {
	s := &Snapshot{
		byCode:  make(map[string][]string),
		byCanon: make(map[string][]string),
		targets: make(map[string]Target),
	}
	for _, t := range targets {
		t.ID = strings.TrimSpace(t.ID)
		t.Code = strings.TrimSpace(t.Code)
		if !t.Enabled || t.ID == "" || t.Code == "" {
			continue
		}
		if _, dup := s.targets[t.ID]; dup {
			continue
		}
		s.targets[t.ID] = t
		s.order = append(s.order, t.ID)
		s.byCode[t.Code] = append(s.byCode[t.Code], t.ID)
		canon := Canonicalize(t.Code)
		s.byCanon[canon] = append(s.byCanon[canon], t.ID)
		if t.Base {
			s.bases = append(s.bases, t.ID)
		}
	}
	return s
}

// BaseID returns the base target id, or "" when none is configured.
func (s *Snapshot) BaseID() string {
	if len(s.bases) == 0 {
		return ""
	}
	return s.bases[0]
}

// Resolve maps a locale code to the ids of every enabled target using it.
// An exact match is preferred; otherwise the canonical form (pt_br -> pt-BR)
// is tried.
func (s *Snapshot) Resolve(code string) ([]string, bool) {
	ids, ok := s.byCode[code]
	if !ok {
		ids, ok = s.byCanon[Canonicalize(code)]
	}
	if !ok || len(ids) == 0 {
		return nil, false
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, true
}

// Others returns every enabled target except the base, in load order.
func (s *Snapshot) Others() []string {
	base := s.BaseID()
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if id != base {
			out = append(out, id)
		}
	}
	return out
}

// IDs returns every enabled target id in load order.
func (s *Snapshot) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Target looks up a target by id.
func (s *Snapshot) Target(id string) (Target, bool) {
	t, ok := s.targets[id]
	return t, ok
}

// Codes returns the configured locale codes, sorted.
func (s *Snapshot) Codes() []string {
	codes := make([]string, 0, len(s.byCode))
	for c := range s.byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Canonicalize normalizes a locale code: underscores become hyphens, the
// language subtag is lower-cased and the region subtag upper-cased.
func Canonicalize(code string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 && len(parts[1]) == 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}
