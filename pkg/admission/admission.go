// Package admission implements the coordinator's worker admission
// policy: who may Identify, and the cheap pre-upgrade hygiene checks
// applied before a session ever reaches the protocol layer.
package admission

import (
	"crypto/subtle"
	"strings"
)

// User is one admitted worker identity. Unlike a single shared secret,
// a table of per-worker records lets the coordinator attribute results
// and revoke one worker without rotating everyone's credentials.
type User struct {
	ID     uint8  `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Secret string `json:"secret" yaml:"secret"`
}

// Table is the admitted-worker registry, keyed by user ID.
type Table struct {
	byID map[uint8]User
}

// NewTable builds a Table from users. Duplicate IDs are rejected by
// keeping the first occurrence; callers should validate configuration
// up front rather than rely on this behavior.
func NewTable(users []User) *Table {
	t := &Table{byID: make(map[uint8]User, len(users))}
	for _, u := range users {
		if _, exists := t.byID[u.ID]; exists {
			continue
		}
		t.byID[u.ID] = u
	}
	return t
}

// Authenticate checks a claimed (userID, secret) pair against the
// table. It returns the matched User and true only on an exact secret
// match.
func (t *Table) Authenticate(userID uint8, secret string) (User, bool) {
	u, ok := t.byID[userID]
	if !ok || secret == "" || subtle.ConstantTimeCompare([]byte(u.Secret), []byte(secret)) != 1 {
		return User{}, false
	}
	return u, true
}

// Len reports the number of admitted users.
func (t *Table) Len() int { return len(t.byID) }

// SupportedClientVersions is the closed set of worker versions this
// coordinator accepts during Identify.
var SupportedClientVersions = []string{"1.0"}

// CheckClientVersion reports whether version is one this coordinator
// is willing to serve.
func CheckClientVersion(version string) bool {
	for _, v := range SupportedClientVersions {
		if v == version {
			return true
		}
	}
	return false
}

// blockedUserAgentSubstrings are markers of generic HTTP tooling that
// never legitimately speaks this protocol. This is hygiene, not
// security: the real admission decision happens at Identify.
var blockedUserAgentSubstrings = []string{
	"curl/",
	"Wget/",
	"python-requests/",
}

// CheckUserAgent rejects obviously-wrong clients before the WebSocket
// upgrade completes, saving a round trip to Identify's authentication
// failure for the common case of someone probing the endpoint by hand.
func CheckUserAgent(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return false
	}
	for _, blocked := range blockedUserAgentSubstrings {
		if strings.Contains(userAgent, blocked) {
			return false
		}
	}
	return true
}
