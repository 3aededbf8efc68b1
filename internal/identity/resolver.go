// Package identity turns bearer tokens into users and gates routes by role.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"contactbook/internal/errs"
	"contactbook/internal/models"
	"contactbook/internal/security"
)

type TokenVerifier interface {
	Verify(token string, expected security.TokenKind) (security.Claims, error)
}

type InvalidationStore interface {
	Invalidate(ctx context.Context, token string, ttl time.Duration) error
	IsInvalidated(ctx context.Context, token string) (bool, error)
}

type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (models.User, error)
}

// Resolver resolves access tokens. Validated identities are cached per token
// for a short TTL; the revocation check runs before the cache on every call.
type Resolver struct {
	tokens  TokenVerifier
	revoked InvalidationStore
	users   UserLookup
	cache   *cache.Cache
	ttl     time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

func NewResolver(tokens TokenVerifier, revoked InvalidationStore, users UserLookup, cacheTTL time.Duration, log zerolog.Logger) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	return &Resolver{
		tokens:  tokens,
		revoked: revoked,
		users:   users,
		cache:   cache.New(cacheTTL, 2*cacheTTL),
		ttl:     cacheTTL,
		log:     log,
		now:     time.Now,
	}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (models.User, error) {
	claims, err := r.tokens.Verify(token, security.KindAccess)
	if err != nil {
		return models.User{}, err
	}

	revoked, err := r.revoked.IsInvalidated(ctx, token)
	if err != nil {
		return models.User{}, err
	}
	if revoked {
		return models.User{}, errs.E(errs.KindUnauthorized, "identity.resolve", "invalid token", nil)
	}

	digest := security.TokenDigest(token)
	if cached, ok := r.cache.Get(digest); ok {
		return cached.(models.User), nil
	}

	user, err := r.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return models.User{}, errs.E(errs.KindUnauthorized, "identity.resolve", "invalid token", nil)
		}
		return models.User{}, err
	}

	// never cache past the token's own expiry
	if ttl := min(r.ttl, claims.Remaining(r.now())); ttl > 0 {
		r.cache.Set(digest, user, ttl)
	}
	return user, nil
}

// Revoke rejects token for the rest of its lifetime and drops its cached
// identity.
func (r *Resolver) Revoke(ctx context.Context, token string) error {
	claims, err := r.tokens.Verify(token, security.KindAccess)
	if err != nil {
		return err
	}

	r.cache.Delete(security.TokenDigest(token))
	if err := r.revoked.Invalidate(ctx, token, claims.Remaining(r.now())); err != nil {
		return err
	}

	r.log.Info().Str("user", claims.Subject).Msg("access token revoked")
	return nil
}
