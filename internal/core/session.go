package core

import (
	"strings"
	"time"
)

// Session is a result set remembered by the NCBI history server.
//
// QueryKey is only meaningful together with the WebEnv that issued it, and a
// session always belongs to exactly one database.
type Session struct {
	Database    string    `json:"db"`
	WebEnv      string    `json:"webenv"`
	QueryKey    string    `json:"query_key"`
	RecordCount int       `json:"count"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionKey indexes sessions by database and WebEnv token.
type SessionKey struct {
	Database string
	WebEnv   string
}

// Key returns the store key for the session.
func (s Session) Key() SessionKey {
	return NewSessionKey(s.Database, s.WebEnv)
}

// Valid reports whether the session carries a usable handle.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.Database) != "" && strings.TrimSpace(s.WebEnv) != "" && strings.TrimSpace(s.QueryKey) != ""
}

// NewSessionKey normalizes a database/WebEnv pair.
func NewSessionKey(database, webEnv string) SessionKey {
	return SessionKey{
		Database: strings.ToLower(strings.TrimSpace(database)),
		WebEnv:   strings.TrimSpace(webEnv),
	}
}
