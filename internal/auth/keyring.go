// Package auth provides API key authentication and role gating for the
// gateway. Keys are static, loaded from the environment at startup, and
// compared in constant time.
package auth

import (
	"crypto/subtle"

	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

// Role classifies an authenticated caller.
type Role string

const (
	// RoleUser may call the query surface.
	RoleUser Role = "user"
	// RoleAdmin may additionally call the debug/admin surface.
	RoleAdmin Role = "admin"
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	// Key is the raw API key, also the rate-limit bucket identity.
	Key  string
	Role Role
}

// Keyring holds the configured API keys.
type Keyring struct {
	userKeys []string
	adminKey string
}

// NewKeyring builds a keyring from the configured key sets. An empty admin
// key disables the admin role entirely.
func NewKeyring(userKeys []string, adminKey string) *Keyring {
	keys := make([]string, 0, len(userKeys))
	for _, k := range userKeys {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return &Keyring{userKeys: keys, adminKey: adminKey}
}

// Empty reports whether no keys are configured, which disables auth.
func (kr *Keyring) Empty() bool {
	return len(kr.userKeys) == 0 && kr.adminKey == ""
}

// Authenticate classifies an API key. Every configured key is compared in
// constant time regardless of early matches, so response timing leaks
// nothing about key prefixes or position.
func (kr *Keyring) Authenticate(key string) (*Identity, error) {
	if key == "" {
		return nil, gwerrors.NewAuthMissing()
	}

	matched := Role("")
	if kr.adminKey != "" && constantTimeEqual(key, kr.adminKey) {
		matched = RoleAdmin
	}
	for _, uk := range kr.userKeys {
		if constantTimeEqual(key, uk) && matched == "" {
			matched = RoleUser
		}
	}

	if matched == "" {
		return nil, gwerrors.NewAuthInvalid()
	}
	return &Identity{Key: key, Role: matched}, nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Redact shortens a key for logging. Never log a full key.
func Redact(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
