package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Row is the remote row shape of an entity: snake_case column names to JSON values.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the row's id column as a string, or "" when missing.
func (r Row) ID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	}
	return ""
}

// ToRow converts an entity (or any JSON-tagged struct) to its row shape.
func ToRow(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("unmarshal row: %w", err)
	}
	return row, nil
}

// FromRow decodes a row into an entity.
func FromRow[T any](row Row) (T, error) {
	var out T
	data, err := json.Marshal(row)
	if err != nil {
		return out, fmt.Errorf("marshal row: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	return out, nil
}

// FromRows decodes a slice of rows, stopping at the first malformed row.
func FromRows[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, r := range rows {
		v, err := FromRow[T](r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Merge overlays patch onto base and decodes the result, so fields absent
// from patch keep their value from base.
func Merge[T any](base T, patch Row) (T, error) {
	row, err := ToRow(base)
	if err != nil {
		return base, err
	}
	for k, v := range patch {
		row[k] = v
	}
	return FromRow[T](row)
}

const tempIDPrefix = "temp_"

// NewTempID returns a client-generated identifier for an entity created
// while its permanent id is not yet known.
func NewTempID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s%d_%s", tempIDPrefix, time.Now().UnixMilli(), suffix)
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}
