// Package pagination implements keyset cursors over (created_at, id) ordered rows.
package pagination

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
)

// ErrInvalidCursor is returned for cursors that were not produced by Encode.
var ErrInvalidCursor = domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")

// Cursor points just past the last row of a page.
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// Encode returns an opaque, URL- and shell-safe token.
func (c Cursor) Encode() string {
	if c.LastID == "" {
		return ""
	}
	raw := c.LastID + "|" + c.Timestamp.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// EncodeCursor is shorthand for Cursor{lastID, timestamp}.Encode().
func EncodeCursor(lastID string, timestamp time.Time) string {
	return Cursor{LastID: lastID, Timestamp: timestamp}.Encode()
}

// DecodeCursor parses a token from Encode. An empty token means the first page
// and yields a nil cursor.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, domain.Wrap(ErrInvalidCursor, err)
	}

	id, ts, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, domain.Wrap(ErrInvalidCursor, err)
	}

	return &Cursor{LastID: id, Timestamp: timestamp}, nil
}

// Trim cuts a limit+1 result down to limit rows and returns the cursor of the
// next page, empty when this is the last one.
func Trim[T any](items []T, limit int, key func(T) (string, time.Time)) ([]T, string) {
	if limit <= 0 || len(items) <= limit {
		return items, ""
	}
	items = items[:limit]
	id, ts := key(items[len(items)-1])
	return items, EncodeCursor(id, ts)
}
