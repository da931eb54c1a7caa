package api

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/store"
	"github.com/rs/zerolog/log"
)

// Authenticator resolves a bearer token to an acting user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (identity.Actor, error)
}

// tokenEntry is one configured API token.
type tokenEntry struct {
	identity string
	admin    bool
}

// TokenAuthenticator resolves tokens from a static table and looks the
// actor's role up in the user store. An identity seen for the first
// time gets a standard user record, matching how identity-provider
// sessions create profiles lazily.
type TokenAuthenticator struct {
	tokens map[string]tokenEntry
	users  store.UserStore
	now    func() time.Time
}

// NewTokenAuthenticator parses a token table of the form
// "token:identity[,token:identity:admin,...]".
func NewTokenAuthenticator(table string, users store.UserStore) *TokenAuthenticator {
	tokens := make(map[string]tokenEntry)
	for _, pair := range strings.Split(table, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ":")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			log.Warn().Str("entry", pair).Msg("api: skipping malformed token entry")
			continue
		}
		tokens[parts[0]] = tokenEntry{
			identity: parts[1],
			admin:    len(parts) > 2 && parts[2] == "admin",
		}
	}
	return &TokenAuthenticator{
		tokens: tokens,
		users:  users,
		now:    time.Now,
	}
}

// Authenticate maps the token to its identity and resolves the role
// from the stored user record.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, token string) (identity.Actor, error) {
	entry, ok := a.tokens[token]
	if !ok {
		return identity.Actor{}, errors.New(errors.ErrorTypeAuth, "api.authenticate", "", errors.ErrUnauthorized)
	}

	rec, err := a.users.GetUser(ctx, entry.identity)
	if stderrors.Is(err, errors.ErrNotFound) {
		rec, err = a.ensureUser(ctx, entry.identity)
	}
	if err != nil {
		return identity.Actor{}, errors.Wrap("api.authenticate", entry.identity, err)
	}

	role := rec.Role
	if entry.admin {
		role = identity.RoleAdmin
	}
	return identity.Actor{Identity: entry.identity, Role: role}, nil
}

func (a *TokenAuthenticator) ensureUser(ctx context.Context, subject string) (*store.UserRecord, error) {
	now := a.now().UTC()
	rec := &store.UserRecord{
		Identity:     subject,
		Role:         identity.RoleStandard,
		UsageResetAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := a.users.CreateUser(ctx, rec)
	if stderrors.Is(err, errors.ErrVersionConflict) {
		// Lost a create race; the record exists now.
		return a.users.GetUser(ctx, subject)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
