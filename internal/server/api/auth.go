package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/systemshift/shopgraph/internal/catalog"
)

type contextKey string

const identityKey contextKey = "identity"

// identityFrom returns the acting identity attached by the auth middleware,
// or false for anonymous requests.
func identityFrom(ctx context.Context) (catalog.Identity, bool) {
	id, ok := ctx.Value(identityKey).(catalog.Identity)
	return id, ok
}

// resolveIdentity verifies a Basic credential pair (email:password) against
// the stored bcrypt hash. Every failure maps to the same ErrInvalidCredentials
// so a response never reveals which half of the pair was wrong.
func (s *Server) resolveIdentity(ctx context.Context, header string) (catalog.Identity, error) {
	if !strings.HasPrefix(header, "Basic ") {
		return catalog.Identity{}, catalog.ErrInvalidCredentials
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return catalog.Identity{}, catalog.ErrInvalidCredentials
	}
	email, password, ok := strings.Cut(string(raw), ":")
	if !ok || email == "" || password == "" {
		return catalog.Identity{}, catalog.ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.Identity{}, catalog.ErrInvalidCredentials
	}
	if err != nil {
		return catalog.Identity{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return catalog.Identity{}, catalog.ErrInvalidCredentials
	}
	return catalog.Identity{ID: user.ID, Name: user.Name, Email: user.Email}, nil
}

// RequireAuth rejects requests without a valid Basic credential pair and
// attaches the resolved identity to the request context.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.fail(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}
		identity, err := s.resolveIdentity(r.Context(), header)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

// OptionalAuth attaches an identity when valid credentials are supplied and
// passes the request through anonymously otherwise. Invalid credentials are
// still rejected; only a missing header is anonymous.
func (s *Server) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := s.resolveIdentity(r.Context(), header)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}
