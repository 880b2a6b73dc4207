package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"go.uber.org/zap"
)

// Source names the tier that produced the bootstrap state
type Source string

const (
	SourceRemote  Source = "remote"
	SourceLocal   Source = "local"
	SourceBackup  Source = "backup"
	SourceDefault Source = "default"
)

// BootstrapResult is the state to hydrate the Layout Store with
type BootstrapResult struct {
	Record      types.Record
	ActiveTabID string
	Source      Source
}

// Bootstrap reads the tiers in precedence order: remote, local, local
// backup, then the built-in default. A failed or empty tier falls through
// to the next one; Bootstrap itself never fails on tier errors.
func (c *Coordinator) Bootstrap(ctx context.Context) (BootstrapResult, error) {
	if err := ctx.Err(); err != nil {
		return BootstrapResult{}, err
	}

	local, localOK := c.loadLocal()

	result := BootstrapResult{Source: SourceDefault}
	if record, ok := c.loadRemote(ctx, local, localOK); ok {
		result.Record = record
		result.Source = SourceRemote
	} else if localOK {
		result.Record = local.record
		result.Source = local.source
	}

	if layoutID := currentLayoutID(result.Record, c.defaultID); layoutID != "" {
		if tabID, ok := c.volatile.ActiveTab(c.user, layoutID); ok {
			result.ActiveTabID = tabID
		}
	}

	c.metrics.RecordBootstrap(string(result.Source))
	c.log.Info("workspace bootstrapped",
		zap.String("source", string(result.Source)),
		zap.Int("layouts", len(result.Record.Layouts)))
	return result, nil
}

type localResult struct {
	record types.Record
	source Source
}

func (c *Coordinator) loadLocal() (localResult, bool) {
	record, ok, err := c.local.Load(c.user)
	if err != nil {
		c.log.Warn("local record unreadable", zap.Error(err))
	}
	if ok && !record.Empty() {
		return localResult{record: record, source: SourceLocal}, true
	}

	backups, ok := c.local.(BackupLoader)
	if !ok {
		return localResult{}, false
	}
	record, ok, err = backups.LoadBackup(c.user)
	if err != nil {
		c.log.Warn("local backup unreadable", zap.Error(err))
		return localResult{}, false
	}
	if !ok || record.Empty() {
		return localResult{}, false
	}
	return localResult{record: record, source: SourceBackup}, true
}

// loadRemote returns the remote state when the remote tier holds any layouts.
// The default working copy only lives locally, so it is carried over when
// the remote pointer still selects the default layout.
func (c *Coordinator) loadRemote(ctx context.Context, local localResult, localOK bool) (types.Record, bool) {
	if c.remote == nil {
		return types.Record{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RemoteTimeout)
	defer cancel()

	layouts, err := c.remote.Get(ctx, c.user)
	switch {
	case errors.Is(err, types.ErrNotFound):
		c.markReachable(true)
		return types.Record{}, false
	case err != nil:
		c.log.Warn("remote tier unavailable, falling back", zap.Error(err))
		c.markReachable(false)
		return types.Record{}, false
	}
	c.markReachable(true)

	record := types.Record{DefaultLayoutID: c.defaultID}
	for _, l := range layouts {
		if l.IsDefault || l.ID == c.defaultID {
			continue
		}
		record.Layouts = append(record.Layouts, l)
	}
	if len(record.Layouts) == 0 {
		return types.Record{}, false
	}

	if pt, ok := c.remote.(PointerTier); ok {
		pointer, err := pt.GetPointer(ctx, c.user)
		switch {
		case err == nil:
			record.ActiveLayoutID = pointer.ActiveLayoutID
			if pointer.DefaultLayoutID != "" {
				record.DefaultLayoutID = pointer.DefaultLayoutID
			}
			c.remoteMu.Lock()
			p := pointer
			c.pointer = &p
			c.remoteMu.Unlock()
		case !errors.Is(err, types.ErrNotFound):
			c.log.Warn("remote pointer unavailable", zap.Error(err))
		}
	}

	// Last writer wins per layout: edits made while the remote tier was
	// unreachable are newer than the remote copy and must survive
	accepted := make(map[string]time.Time, len(record.Layouts))
	for i, l := range record.Layouts {
		accepted[l.ID] = l.UpdatedAt
		if !localOK {
			continue
		}
		if mine, ok := local.record.Layout(l.ID); ok && mine.UpdatedAt.After(l.UpdatedAt) {
			record.Layouts[i] = mine.Clone()
		}
	}

	active := record.ActiveLayoutID
	if active == "" {
		active = c.defaultID
	}
	if localOK && local.record.Current != nil && local.record.Current.ID == active {
		keep := active == c.defaultID
		if saved, ok := record.Layout(active); ok && !local.record.Current.UpdatedAt.Before(saved.UpdatedAt) {
			keep = true
		}
		if keep {
			cur := local.record.Current.Clone()
			record.Current = &cur
			record.ActiveLayoutID = active
		}
	}

	c.remoteMu.Lock()
	for id, at := range accepted {
		c.pushed[id] = at
	}
	c.remoteMu.Unlock()

	return record, true
}

func (c *Coordinator) markReachable(reachable bool) {
	now := time.Now()
	c.updateState(func(s *types.SyncState) {
		s.RemoteReachable = reachable
		if reachable {
			s.LastRemoteSync = &now
		}
	})
}

func currentLayoutID(record types.Record, defaultID string) string {
	if record.Current != nil {
		return record.Current.ID
	}
	if record.ActiveLayoutID != "" {
		return record.ActiveLayoutID
	}
	return defaultID
}
