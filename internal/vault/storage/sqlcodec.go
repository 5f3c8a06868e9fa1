package storage

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
)

// Helpers shared by the SQL-backed adapters. Timestamps are stored as unix
// milliseconds so ordering in SQL matches ordering in Go.

// MillisOf returns t as unix milliseconds.
func MillisOf(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// NullMillis converts an optional time to a nullable integer column.
func NullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: MillisOf(*t), Valid: true}
}

// TimeFromNull converts a nullable integer column back to an optional time.
func TimeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := schema.FromMillis(n.Int64)
	return &t
}

// NullRaw stores an opaque payload; empty payloads become NULL.
func NullRaw(raw json.RawMessage) sql.NullString {
	if len(bytes.TrimSpace(raw)) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// RawFromNull is the inverse of NullRaw.
func RawFromNull(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

// EncodeResponses serializes a response map to a JSON column value.
func EncodeResponses(r schema.Responses) (string, error) {
	if len(r) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal responses: %w", err)
	}
	return string(data), nil
}

// DecodeResponses parses a JSON column value into a response map.
func DecodeResponses(s string) (schema.Responses, error) {
	r := schema.Responses{}
	if s == "" || s == "null" {
		return r, nil
	}
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal responses: %w", err)
	}
	return r, nil
}

// BoolToInt maps a bool to SQLite's integer representation.
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
