package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/Domusgpt/parserator-sub000/internal/usage"
)

// ErrUnknownKey reports an API key the resolver does not recognize.
var ErrUnknownKey = errors.New("unknown api key")

// Subject identifies a caller for quota accounting and logging.
type Subject struct {
	ID        string
	Tier      string
	Anonymous bool
}

// KeyResolver maps an API key to its account. Implementations back onto
// whatever credential store the deployment uses.
type KeyResolver interface {
	Resolve(ctx context.Context, apiKey string) (Subject, error)
}

// StaticKeyResolver resolves keys from an in-memory table, suitable for
// config-file deployments and tests.
type StaticKeyResolver struct {
	keys map[string]Subject
}

// NewStaticKeyResolver builds a resolver from a key→subject table.
func NewStaticKeyResolver(keys map[string]Subject) *StaticKeyResolver {
	if keys == nil {
		keys = map[string]Subject{}
	}
	return &StaticKeyResolver{keys: keys}
}

func (r *StaticKeyResolver) Resolve(ctx context.Context, apiKey string) (Subject, error) {
	subject, ok := r.keys[apiKey]
	if !ok {
		return Subject{}, ErrUnknownKey
	}
	return subject, nil
}

// apiKeyFrom extracts the caller's key from the X-API-Key header or a
// bearer token; empty means anonymous.
func apiKeyFrom(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// anonymousSubject keys quota accounting on the client IP.
func anonymousSubject(r *http.Request) Subject {
	return Subject{ID: clientIP(r), Tier: usage.TierAnonymous, Anonymous: true}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the original client.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
