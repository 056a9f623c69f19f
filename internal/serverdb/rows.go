package serverdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/tally/internal/models"
)

var (
	// ErrUnknownTable is returned for table names outside the data tables.
	ErrUnknownTable = errors.New("unknown table")
	// ErrInvalidRow is returned when a row has unknown columns or violates a constraint.
	ErrInvalidRow = errors.New("invalid row")
	// ErrRowNotFound is returned when no row with the id is visible to the owner.
	ErrRowNotFound = errors.New("row not found")
)

var validColumnName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

const zeroTime = "0001-01-01T00:00:00Z"

// SelectRows returns every row of table owned by ownerID. Transactions and
// investments come newest first, reminders by due date.
func (db *ServerDB) SelectRows(table, ownerID string) ([]models.Row, error) {
	if _, ok := tableColumns[table]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	order := "created_at DESC"
	if table == string(models.TableReminders) {
		order = "due_date ASC"
	}
	rows, err := db.conn.Query(fmt.Sprintf(`SELECT * FROM %s WHERE user_id = ? ORDER BY %s`, table, order), ownerID)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(table, rows)
}

// InsertRow stores fields as a new row owned by ownerID and returns it as
// persisted. The id is always assigned here; created_at when absent.
func (db *ServerDB) InsertRow(table, ownerID string, fields models.Row) (models.Row, error) {
	cols, ok := tableColumns[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	row := fields.Clone()
	row["id"] = uuid.NewString()
	row["user_id"] = ownerID
	if ts, _ := row["created_at"].(string); ts == "" || ts == zeroTime {
		row["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if err := normalizeFieldsForDB(cols, row); err != nil {
		return nil, err
	}

	colList, placeholders, vals, err := buildInsert(row)
	if err != nil {
		return nil, err
	}
	if _, err := db.conn.Exec(fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table, colList, placeholders), vals...); err != nil {
		return nil, classifyWriteErr(table, err)
	}

	return db.getRow(table, ownerID, row.ID())
}

// UpdateRow merges fields into the row with id owned by ownerID. The id
// and owner columns cannot be changed.
func (db *ServerDB) UpdateRow(table, ownerID, id string, fields models.Row) error {
	cols, ok := tableColumns[table]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	patch := fields.Clone()
	delete(patch, "id")
	delete(patch, "user_id")
	if err := normalizeFieldsForDB(cols, patch); err != nil {
		return err
	}

	if len(patch) == 0 {
		_, err := db.getRow(table, ownerID, id)
		return err
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sets := make([]string, len(keys))
	vals := make([]any, 0, len(keys)+2)
	for i, k := range keys {
		sets[i] = k + " = ?"
		vals = append(vals, patch[k])
	}
	vals = append(vals, id, ownerID)

	res, err := db.conn.Exec(
		fmt.Sprintf(`UPDATE %s SET %s WHERE id = ? AND user_id = ?`, table, strings.Join(sets, ", ")),
		vals...,
	)
	if err != nil {
		return classifyWriteErr(table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s %s: %w", table, id, ErrRowNotFound)
	}
	return nil
}

// DeleteRow removes the row with id owned by ownerID. A missing row is not
// an error, so replayed deletes succeed.
func (db *ServerDB) DeleteRow(table, ownerID, id string) error {
	if _, ok := tableColumns[table]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	res, err := db.conn.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND user_id = ?`, table), id, ownerID)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Debug("delete: no row", "table", table, "id", id)
	}
	return nil
}

func (db *ServerDB) getRow(table, ownerID, id string) (models.Row, error) {
	rows, err := db.conn.Query(fmt.Sprintf(`SELECT * FROM %s WHERE id = ? AND user_id = ?`, table), id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", table, id, err)
	}
	defer rows.Close()
	out, err := scanRows(table, rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("get %s %s: %w", table, id, ErrRowNotFound)
	}
	return out[0], nil
}

func scanRows(table string, rows *sql.Rows) ([]models.Row, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	kinds := tableColumns[table]

	out := []models.Row{}
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(models.Row, len(names))
		for i, name := range names {
			row[name] = fromDB(kinds[name], vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

func fromDB(kind columnKind, v any) any {
	switch val := v.(type) {
	case []byte:
		v = string(val)
	case int64:
		if kind == colBool {
			return val != 0
		}
	}
	return v
}

// buildInsert returns sorted column names, placeholders and values for an
// INSERT. Column names are checked against validColumnName.
func buildInsert(fields map[string]any) (cols string, placeholders string, vals []any, err error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !validColumnName.MatchString(k) {
			return "", "", nil, fmt.Errorf("%w: invalid column name: %q", ErrInvalidRow, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ph := make([]string, len(keys))
	vals = make([]any, len(keys))
	for i, k := range keys {
		ph[i] = "?"
		vals[i] = fields[k]
	}
	return strings.Join(keys, ", "), strings.Join(ph, ", "), vals, nil
}

// normalizeFieldsForDB rejects unknown columns and converts JSON values to
// what SQLite stores: booleans as 0/1, numbers as exact decimal text,
// arrays and objects as JSON text.
func normalizeFieldsForDB(cols map[string]columnKind, fields models.Row) error {
	for k, v := range fields {
		kind, ok := cols[k]
		if !ok || !validColumnName.MatchString(k) {
			return fmt.Errorf("%w: unknown column %q", ErrInvalidRow, k)
		}
		switch val := v.(type) {
		case bool:
			if val {
				fields[k] = 1
			} else {
				fields[k] = 0
			}
		case float64:
			if kind == colBool {
				if val != 0 {
					fields[k] = 1
				} else {
					fields[k] = 0
				}
				continue
			}
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case json.Number:
			fields[k] = val.String()
		case []any, map[string]any:
			data, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("%w: column %q: %v", ErrInvalidRow, k, err)
			}
			fields[k] = string(data)
		}
	}
	return nil
}

func classifyWriteErr(table string, err error) error {
	if strings.Contains(err.Error(), "constraint failed") {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRow, table, err)
	}
	return fmt.Errorf("write %s: %w", table, err)
}
