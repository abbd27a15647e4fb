// Package scheduler snapshots the workspace tree on a cron schedule so a
// crashed or misbehaving session never loses more than one interval of work.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/foundry/internal/types"
)

// keepSnapshots bounds the autosave directory.
const keepSnapshots = 20

// Scheduler periodically writes workspace snapshots to <dir>/autosave/.
type Scheduler struct {
	trees    types.WorkspaceStore
	dir      string
	schedule string
	cron     *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and the
// @every/@hourly descriptors.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler snapshotting the given store into dir on the given
// cron schedule.
func New(trees types.WorkspaceStore, dir, schedule string) *Scheduler {
	return &Scheduler{
		trees:    trees,
		dir:      filepath.Join(dir, "autosave"),
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the autosave entry and starts the cron ticker.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Snapshot(context.Background()); err != nil {
			slog.Error("autosave failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid autosave schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	slog.Info("autosave scheduled", "schedule", s.schedule, "dir", s.dir)
	return nil
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Snapshot writes one timestamped copy of the workspace tree and prunes old
// snapshots past the retention bound.
func (s *Scheduler) Snapshot(ctx context.Context) error {
	tree, err := s.trees.Load(ctx)
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}

	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workspace: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create autosave dir: %w", err)
	}

	name := fmt.Sprintf("workspace-%s.json", time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}

	s.prune()
	return nil
}

// prune removes the oldest snapshots beyond the retention bound. The
// timestamped names sort chronologically.
func (s *Scheduler) prune() {
	entries, err := filepath.Glob(filepath.Join(s.dir, "workspace-*.json"))
	if err != nil || len(entries) <= keepSnapshots {
		return
	}
	sort.Strings(entries)
	for _, old := range entries[:len(entries)-keepSnapshots] {
		if err := os.Remove(old); err != nil {
			slog.Warn("prune snapshot failed", "path", old, "error", err)
		}
	}
}
