// Package identity is the narrow adapter between an already-authenticated
// chat-platform session and the core: it extracts an opaque bearer
// credential from an incoming connection request and resolves it to a
// (user_id, username) pair. OAuth flows, refresh-token storage, and
// profile persistence are out of scope (spec §1) and live in a collaborator
// this interface does not need to know about.
package identity

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrNoCredential is returned when a request carries no bearer token at all.
var ErrNoCredential = errors.New("identity: no bearer credential present")

// ErrInvalidCredential is returned when a token is present but does not
// resolve to a user.
var ErrInvalidCredential = errors.New("identity: invalid bearer credential")

// User is the resolved, opaque-to-the-core identity of a connecting player.
type User struct {
	UserID    int64
	Username  string
	AvatarURL string
}

// Resolver resolves an opaque bearer token to a User. The core requires
// only this interface; how tokens are issued and validated (chat-platform
// OAuth, session cookies, JWTs) is the out-of-scope collaborator's concern.
type Resolver interface {
	Resolve(ctx context.Context, token string) (User, error)
}

// ExtractBearerToken pulls a bearer credential from an Authorization header
// or a ?token= query parameter, per spec §6. Returns ErrNoCredential if
// neither is present.
func ExtractBearerToken(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(auth, prefix) {
			token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
			if token != "" {
				return token, nil
			}
		}
		return "", ErrInvalidCredential
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", ErrNoCredential
}

// StaticResolver is a development/test Resolver backed by an in-memory map
// of token -> User, derived via HKDF so that token bytes are never compared
// or logged directly. Production deployments plug in a Resolver backed by
// the chat platform's own session verification; this type exists so the
// core is runnable and testable without that collaborator.
type StaticResolver struct {
	users map[string]User
}

// NewStaticResolver builds a StaticResolver from a token -> User map.
func NewStaticResolver(users map[string]User) *StaticResolver {
	cp := make(map[string]User, len(users))
	for k, v := range users {
		cp[deriveKey(k)] = v
	}
	return &StaticResolver{users: cp}
}

func (s *StaticResolver) Resolve(_ context.Context, token string) (User, error) {
	u, ok := s.users[deriveKey(token)]
	if !ok {
		return User{}, ErrInvalidCredential
	}
	return u, nil
}

// deriveKey runs the raw token through HKDF-SHA256 so the resolver's
// internal map never stores or compares tokens verbatim.
func deriveKey(token string) string {
	r := hkdf.New(sha256.New, []byte(token), nil, []byte("spellcast-identity"))
	out := make([]byte, 32)
	// hkdf.New with a non-empty secret never fails to produce 32 bytes here.
	_, _ = r.Read(out)
	return string(out)
}
