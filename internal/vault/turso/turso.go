// Package turso opens authenticated connections to a hosted libSQL database.
//
// Credentials come from a small JSON file written by the sign-in flow:
//
//	{"url": "libsql://my-db.turso.io", "auth_token": "..."}
//
// The returned *sql.DB is handed to remote.New. Closing it is the caller's
// responsibility.
package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// DriverName is the database/sql driver registered by go-libsql.
const DriverName = "libsql"

// ErrNoCredentials is returned when the credentials file is missing or
// carries no URL.
var ErrNoCredentials = errors.New("no credentials")

// Credentials identify and authorize a remote database.
type Credentials struct {
	URL       string `json:"url"`
	AuthToken string `json:"auth_token,omitempty"`
}

// Valid reports whether the credentials name a database.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.URL) != ""
}

// DSN returns the connection string understood by the libsql driver.
// The auth token travels as the authToken query parameter.
func (c Credentials) DSN() (string, error) {
	if !c.Valid() {
		return "", ErrNoCredentials
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}
	switch u.Scheme {
	case "libsql", "https", "http", "wss", "ws":
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
	if c.AuthToken != "" {
		q := u.Query()
		q.Set("authToken", c.AuthToken)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// ReadCredentials loads credentials from path. A missing file yields
// ErrNoCredentials.
func ReadCredentials(path string) (Credentials, error) {
	var creds Credentials
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		if os.IsNotExist(err) {
			return creds, ErrNoCredentials
		}
		return creds, fmt.Errorf("failed to read credentials: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return creds, ErrNoCredentials
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("failed to parse credentials %s: %w", path, err)
	}
	if !creds.Valid() {
		return creds, ErrNoCredentials
	}
	return creds, nil
}

// WriteCredentials stores credentials at path with owner-only permissions.
func WriteCredentials(path string, creds Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}

// Open connects to the remote database and verifies it with a ping.
func Open(ctx context.Context, creds Credentials) (*sql.DB, error) {
	dsn, err := creds.DSN()
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}

	// Hosted endpoints are reached over HTTP; keep the pool small.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to reach remote database: %w", err)
	}
	return conn, nil
}
