package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/queue"
)

// Insert adds row to table with a temporary id and returns the stored row.
// When online the row is sent right away and, on success, re-keyed to the
// permanent id the service returned.
func (s *Store) Insert(ctx context.Context, table models.Table, row models.Row) (models.Row, error) {
	owner, ok := s.identity.OwnerID()
	if !ok {
		return nil, ErrNoOwner
	}
	col, err := s.collection(table)
	if err != nil {
		return nil, err
	}

	tempID := models.NewTempID()
	local := row.Clone()
	local["id"] = tempID
	local["user_id"] = owner
	if ts, _ := local["created_at"].(string); ts == "" || ts == (time.Time{}).Format(time.RFC3339) {
		local["created_at"] = s.now().UTC().Format(time.RFC3339Nano)
	}
	payload := local.Clone()
	delete(payload, "id")

	s.mu.Lock()
	if err := col.prepend(local); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	col.writeCache(s.cache)
	online := s.conn.Online()
	direct := online && !referencesTemp("", payload)
	if direct {
		s.inflight[tempID]++
	}
	s.mu.Unlock()

	op := queue.Operation{Table: table, Action: queue.ActionInsert, Payload: payload, TempID: tempID}
	if !direct {
		s.enqueue(op, owner, online)
		return local, nil
	}

	inserted, err := s.remote.Insert(ctx, table, payload)
	if err != nil {
		s.doneInflight(tempID)
		s.retryLater(op, owner, err)
		return local, nil
	}

	merged := local
	s.mu.Lock()
	s.doneInflightLocked(tempID)
	rewrites := map[string]string{tempID: inserted.ID()}
	if _, err := col.merge(tempID, inserted); err != nil {
		slog.Warn("store: apply inserted row", "table", table, "err", err)
	}
	s.resolveLocked(rewrites)
	if r, ok := col.row(inserted.ID()); ok {
		merged = r
	}
	s.mu.Unlock()

	// Operations queued against the temp id while the insert was in flight
	// now target the permanent id and may replay.
	if s.PendingCount() > 0 {
		s.signalDrain()
	}
	return merged, nil
}

// Update merges patch into the entity with id.
func (s *Store) Update(ctx context.Context, table models.Table, id string, patch models.Row) error {
	owner, ok := s.identity.OwnerID()
	if !ok {
		return ErrNoOwner
	}
	col, err := s.collection(table)
	if err != nil {
		return err
	}
	patch = patch.Clone()
	delete(patch, "id")
	delete(patch, "user_id")

	s.mu.Lock()
	found, err := col.merge(id, patch)
	if err != nil || !found {
		s.mu.Unlock()
		if err != nil {
			return err
		}
		return fmt.Errorf("%s %s: %w", table, id, ErrEntityNotFound)
	}
	col.writeCache(s.cache)
	direct := s.directLocked(id, patch)
	s.mu.Unlock()

	op := queue.Operation{Table: table, Action: queue.ActionUpdate, EntityID: id, Payload: patch}
	if !direct {
		s.enqueue(op, owner, s.conn.Online())
		return nil
	}
	if err := s.remote.Update(ctx, table, id, patch); err != nil {
		s.doneInflight(id)
		s.retryLater(op, owner, err)
		return nil
	}
	s.doneInflight(id)
	return nil
}

// Delete removes the entity with id.
func (s *Store) Delete(ctx context.Context, table models.Table, id string) error {
	owner, ok := s.identity.OwnerID()
	if !ok {
		return ErrNoOwner
	}
	col, err := s.collection(table)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !col.remove(id) {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", table, id, ErrEntityNotFound)
	}
	col.writeCache(s.cache)
	direct := s.directLocked(id, nil)
	s.mu.Unlock()

	op := queue.Operation{Table: table, Action: queue.ActionDelete, EntityID: id}
	if !direct {
		s.enqueue(op, owner, s.conn.Online())
		return nil
	}
	if err := s.remote.Delete(ctx, table, id); err != nil {
		s.doneInflight(id)
		s.retryLater(op, owner, err)
		return nil
	}
	s.doneInflight(id)
	return nil
}

// directLocked decides whether a mutation on id may go straight to the
// remote service. It may not while offline, when it involves a temporary id,
// or when earlier work on the same entity is still queued. A direct call is
// registered as in flight.
func (s *Store) directLocked(id string, patch models.Row) bool {
	if !s.conn.Online() || referencesTemp(id, patch) || s.queue.HasTarget(id) {
		return false
	}
	s.inflight[id]++
	return true
}

func (s *Store) doneInflight(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doneInflightLocked(id)
}

func (s *Store) doneInflightLocked(id string) {
	if s.inflight[id] <= 1 {
		delete(s.inflight, id)
		return
	}
	s.inflight[id]--
}

// enqueueLocked stamps op with its owner, swaps in permanent ids already
// known for its temp ids and appends it. It reports whether op still waits
// on an insert that is in flight. Callers hold s.mu, so an op is either
// queued before a resolved insert rewrites the queue or rewritten here.
func (s *Store) enqueueLocked(op queue.Operation, owner string) (queue.Operation, bool, error) {
	op.Owner = owner
	op = queue.Rewrite(op, s.resolved)
	stored, err := s.queue.Enqueue(op)
	if err != nil {
		return stored, false, err
	}
	waiting := false
	for _, id := range tempRefs(stored) {
		if s.inflight[id] > 0 {
			waiting = true
			break
		}
	}
	return stored, waiting, nil
}

func (s *Store) enqueue(op queue.Operation, owner string, online bool) {
	s.mu.Lock()
	stored, waiting, err := s.enqueueLocked(op, owner)
	s.mu.Unlock()
	if err != nil {
		slog.Error("store: enqueue", "table", op.Table, "action", op.Action, "err", err)
		return
	}
	if !online {
		s.notify(msgSavedOffline)
		return
	}
	if waiting {
		// The insert's completion kicks the drain.
		slog.Debug("store: queued until insert completes", "op", stored.ID, "target", stored.Target())
		return
	}
	slog.Debug("store: queued behind pending work", "op", stored.ID, "target", stored.Target())
	s.signalDrain()
}

// retryLater queues a direct call that failed so the next drain replays it.
func (s *Store) retryLater(op queue.Operation, owner string, err error) {
	slog.Warn("store: remote call failed, queued for retry",
		"table", op.Table, "action", op.Action, "target", op.Target(), "err", err)
	s.mu.Lock()
	_, _, qerr := s.enqueueLocked(op, owner)
	s.mu.Unlock()
	if qerr != nil {
		slog.Error("store: enqueue retry", "err", qerr)
	}
}

// tempRefs lists the temporary ids op depends on: its target, unless it is
// the insert that creates it, and temp ids among its payload values.
func tempRefs(op queue.Operation) []string {
	var out []string
	if op.Action != queue.ActionInsert && models.IsTempID(op.EntityID) {
		out = append(out, op.EntityID)
	}
	for _, v := range op.Payload {
		if id, ok := v.(string); ok && models.IsTempID(id) && id != op.TempID {
			out = append(out, id)
		}
	}
	return out
}

// --- typed mutators ---

func entityPatch(v any) (models.Row, error) {
	r, err := models.ToRow(v)
	if err != nil {
		return nil, err
	}
	delete(r, "id")
	delete(r, "user_id")
	delete(r, "created_at")
	return r, nil
}

func insertEntity[T models.Entity](ctx context.Context, s *Store, table models.Table, v T) (T, error) {
	var zero T
	r, err := models.ToRow(v)
	if err != nil {
		return zero, err
	}
	stored, err := s.Insert(ctx, table, r)
	if err != nil {
		return zero, err
	}
	return models.FromRow[T](stored)
}

func updateEntity(ctx context.Context, s *Store, table models.Table, v models.Entity) error {
	patch, err := entityPatch(v)
	if err != nil {
		return err
	}
	return s.Update(ctx, table, v.EntityID(), patch)
}

// AddTransaction stores tx and returns it with its (temporary or permanent) id.
func (s *Store) AddTransaction(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	return insertEntity(ctx, s, models.TableTransactions, tx)
}

// UpdateTransaction replaces the business fields of the transaction with tx.ID.
func (s *Store) UpdateTransaction(ctx context.Context, tx models.Transaction) error {
	return updateEntity(ctx, s, models.TableTransactions, tx)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.Delete(ctx, models.TableTransactions, id)
}

// AddReminder stores r and returns it with its id.
func (s *Store) AddReminder(ctx context.Context, r models.Reminder) (models.Reminder, error) {
	return insertEntity(ctx, s, models.TableReminders, r)
}

func (s *Store) UpdateReminder(ctx context.Context, r models.Reminder) error {
	return updateEntity(ctx, s, models.TableReminders, r)
}

func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	return s.Delete(ctx, models.TableReminders, id)
}

// SetReminderPaid flips the paid flag of a reminder.
func (s *Store) SetReminderPaid(ctx context.Context, id string, paid bool) error {
	return s.Update(ctx, models.TableReminders, id, models.Row{"is_paid": paid})
}

// AddInvestment stores inv and returns it with its id.
func (s *Store) AddInvestment(ctx context.Context, inv models.Investment) (models.Investment, error) {
	return insertEntity(ctx, s, models.TableInvestments, inv)
}

func (s *Store) UpdateInvestment(ctx context.Context, inv models.Investment) error {
	return updateEntity(ctx, s, models.TableInvestments, inv)
}

func (s *Store) DeleteInvestment(ctx context.Context, id string) error {
	return s.Delete(ctx, models.TableInvestments, id)
}

// UpdateFields merges a partial row into any entity.
func (s *Store) UpdateFields(ctx context.Context, table models.Table, id string, patch models.Row) error {
	return s.Update(ctx, table, id, patch)
}

// MarkInvestmentDone realizes an investment: it records an expense for the
// invested amount, then flags the investment with the realization date and a
// reference to that expense. Each step is a regular mutation; a failure of
// the second does not undo the first.
func (s *Store) MarkInvestmentDone(ctx context.Context, id string) (models.Transaction, error) {
	if _, ok := s.identity.OwnerID(); !ok {
		return models.Transaction{}, ErrNoOwner
	}

	s.mu.Lock()
	i := s.investments.index(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Transaction{}, fmt.Errorf("%s %s: %w", models.TableInvestments, id, ErrEntityNotFound)
	}
	inv := s.investments.items[i]
	if inv.Invested || s.realizing[id] {
		s.mu.Unlock()
		return models.Transaction{}, fmt.Errorf("%s: %w", inv.Name, ErrAlreadyInvested)
	}
	// Held until the flag update is applied, so a second call cannot record
	// another expense in between.
	s.realizing[id] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.realizing, id)
		s.mu.Unlock()
	}()

	now := s.now().UTC()
	tx, err := s.AddTransaction(ctx, models.Transaction{
		Type:        models.TypeExpense,
		Amount:      inv.Amount,
		Category:    models.CategoryInvestment,
		Description: inv.Name,
		Date:        now,
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("record investment expense: %w", err)
	}

	err = s.Update(ctx, models.TableInvestments, id, models.Row{
		"ja_investido":    true,
		"data_realizacao": now.Format(time.RFC3339Nano),
		"transaction_id":  tx.ID,
	})
	if err != nil {
		return tx, fmt.Errorf("flag investment: %w", err)
	}
	return tx, nil
}
