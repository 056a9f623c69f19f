package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/queue"
)

// SyncResult describes one drain pass.
type SyncResult struct {
	// Skipped is set when another drain was already running.
	Skipped bool
	// Attempted counts operations sent, including the one that failed.
	Attempted int
	// Synced counts operations the remote service accepted.
	Synced int
	// Remaining is the queue length after the pass.
	Remaining int
	// Rewrites maps temporary ids resolved in this pass to permanent ids.
	Rewrites map[string]string
}

// SyncQueue replays queued operations in order and stops at the first
// failure. Accepted operations leave the queue; the rest stay, with any
// temporary id resolved in this pass replaced by its permanent id. When at
// least one operation was accepted the collections are rewritten and then
// refetched. The returned error is the failure that stopped the pass.
func (s *Store) SyncQueue(ctx context.Context) (SyncResult, error) {
	if _, ok := s.identity.OwnerID(); !ok {
		return SyncResult{}, ErrNoOwner
	}

	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return SyncResult{Skipped: true, Remaining: s.PendingCount()}, nil
	}
	s.syncing = true
	s.state = StateSyncing
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.state = StateReady
		s.mu.Unlock()
	}()

	res := SyncResult{Rewrites: make(map[string]string)}
	var applied []string
	var stopErr error

	for _, op := range s.ownOperations() {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		op = queue.Rewrite(op, res.Rewrites)
		s.mu.Lock()
		op = queue.Rewrite(op, s.resolved)
		s.mu.Unlock()
		// Any temp id still present belongs to an insert that has not been
		// replayed yet: one in flight as a direct call.
		if refs := tempRefs(op); len(refs) > 0 {
			stopErr = fmt.Errorf("replay %s %s %s: %w", op.Action, op.Table, op.Target(), ErrAwaitingInsert)
			slog.Debug("store: drain waits for insert", "op", op.ID, "temp_id", refs[0])
			break
		}
		res.Attempted++

		if err := s.dispatch(ctx, op, res.Rewrites); err != nil {
			stopErr = fmt.Errorf("replay %s %s %s: %w", op.Action, op.Table, op.Target(), err)
			slog.Debug("store: drain stopped", "op", op.ID, "err", err)
			break
		}
		applied = append(applied, op.ID)
	}

	s.queue.Resolve(applied, res.Rewrites)
	res.Synced = len(applied)

	if res.Synced > 0 {
		s.mu.Lock()
		// Also catches operations queued against a temp id while the pass ran.
		s.resolveLocked(res.Rewrites)
		s.mu.Unlock()

		if err := s.refetch(ctx); err != nil {
			slog.Warn("store: refetch after drain", "err", err)
		}
		s.notify(syncedMessage(res.Synced))
	}

	res.Remaining = s.PendingCount()
	slog.Debug("store: drain finished", "synced", res.Synced, "remaining", res.Remaining)
	return res, stopErr
}

func syncedMessage(n int) string {
	if n == 1 {
		return "1 operation synced"
	}
	return fmt.Sprintf("%d operations synced", n)
}

// dispatch sends one operation. A successful insert records its id rewrite.
func (s *Store) dispatch(ctx context.Context, op queue.Operation, rewrites map[string]string) error {
	switch op.Action {
	case queue.ActionInsert:
		inserted, err := s.remote.Insert(ctx, op.Table, op.Payload)
		if err != nil {
			return err
		}
		rewrites[op.TempID] = inserted.ID()
		return nil
	case queue.ActionUpdate:
		return s.remote.Update(ctx, op.Table, op.EntityID, op.Payload)
	case queue.ActionDelete:
		return s.remote.Delete(ctx, op.Table, op.EntityID)
	}
	return fmt.Errorf("%w: action %q", queue.ErrInvalidOperation, op.Action)
}

// resolveLocked records permanent ids for resolved temp ids and rewrites
// them in the collections and in the queue. Callers hold s.mu.
func (s *Store) resolveLocked(rewrites map[string]string) {
	if len(rewrites) == 0 {
		return
	}
	for temp, id := range rewrites {
		s.resolved[temp] = id
	}
	s.rewriteLocked(rewrites)
	s.queue.Resolve(nil, rewrites)
}

// rewriteLocked applies id rewrites to every collection and refreshes the
// cache of those that changed. Callers hold s.mu.
func (s *Store) rewriteLocked(rewrites map[string]string) {
	if len(rewrites) == 0 {
		return
	}
	for _, table := range models.AllTables {
		col, _ := s.collection(table)
		n, err := col.rewrite(rewrites)
		if err != nil {
			slog.Warn("store: rewrite ids", "table", table, "err", err)
		}
		if n > 0 {
			col.writeCache(s.cache)
		}
	}
}

// refetch replaces every collection with the remote rows, keeping the
// current contents of any table that could not be fetched.
func (s *Store) refetch(ctx context.Context) error {
	owner, ok := s.identity.OwnerID()
	if !ok {
		return ErrNoOwner
	}
	fetched := s.fetch(ctx, owner, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	for table, rows := range fetched {
		col, _ := s.collection(table)
		if err := col.replace(rows); err != nil {
			slog.Warn("store: decode refetched rows", "table", table, "err", err)
			continue
		}
	}
	s.overlayPendingLocked()
	for _, table := range models.AllTables {
		col, _ := s.collection(table)
		col.writeCache(s.cache)
	}
	if missing := len(models.AllTables) - len(fetched); missing > 0 {
		return fmt.Errorf("%d of %d tables not refetched", missing, len(models.AllTables))
	}
	return nil
}

// Refresh refetches every collection from the remote service.
func (s *Store) Refresh(ctx context.Context) error {
	if !s.conn.Online() {
		return fmt.Errorf("refresh: offline")
	}
	return s.refetch(ctx)
}
