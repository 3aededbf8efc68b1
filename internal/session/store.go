// Package session records access tokens that must be rejected before they
// expire (logout, forced invalidation). Entries live in Redis with a TTL equal
// to the token's remaining lifetime, so the set never needs sweeping.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"contactbook/internal/errs"
	"contactbook/internal/security"
)

const keyPrefix = "auth:revoked:"

type FailureMode string

const (
	// FailClosed rejects every token while Redis cannot be reached.
	FailClosed FailureMode = "fail_closed"
	// FailGrace answers "not revoked" during the first Grace of an outage, then
	// fails closed.
	FailGrace FailureMode = "grace"
)

type FailurePolicy struct {
	Mode  FailureMode
	Grace time.Duration
}

type Store struct {
	client *redis.Client
	policy FailurePolicy
	log    zerolog.Logger
	now    func() time.Time

	mu           sync.Mutex
	outageSince  time.Time
	outageActive bool
}

func NewStore(client *redis.Client, policy FailurePolicy, log zerolog.Logger) *Store {
	if policy.Mode == "" {
		policy.Mode = FailClosed
	}
	if policy.Mode == FailGrace && policy.Grace <= 0 {
		policy.Grace = 30 * time.Second
	}
	return &Store{
		client: client,
		policy: policy,
		log:    log,
		now:    time.Now,
	}
}

// Invalidate marks token as revoked for ttl. A non-positive ttl means the token
// has already expired and nothing is written.
func (s *Store) Invalidate(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, key(token), "1", ttl).Err(); err != nil {
		s.markFailure()
		return errs.E(errs.KindStorageUnavailable, "session.invalidate", "session store unavailable", err)
	}
	s.markSuccess()
	return nil
}

func (s *Store) IsInvalidated(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, key(token)).Result()
	if err != nil {
		return s.degraded(err)
	}
	s.markSuccess()
	return n > 0, nil
}

func (s *Store) degraded(cause error) (bool, error) {
	since := s.markFailure()
	if s.policy.Mode == FailGrace {
		outage := s.now().Sub(since)
		if outage <= s.policy.Grace {
			s.log.Warn().
				Err(cause).
				Dur("outage", outage).
				Msg("session store unreachable, accepting token within grace window")
			return false, nil
		}
	}
	s.log.Error().Err(cause).Msg("session store unreachable, rejecting token")
	return false, errs.E(errs.KindStorageUnavailable, "session.is_invalidated", "session store unavailable", cause)
}

func (s *Store) markFailure() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.outageActive {
		s.outageActive = true
		s.outageSince = s.now()
	}
	return s.outageSince
}

func (s *Store) markSuccess() {
	s.mu.Lock()
	s.outageActive = false
	s.mu.Unlock()
}

func key(token string) string {
	return fmt.Sprintf("%s%s", keyPrefix, security.TokenDigest(token))
}
