package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

type RefreshTokenRepository struct {
	s *Store
}

func (r *RefreshTokenRepository) Create(_ context.Context, userID string, token string, validity time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[userID]; !ok {
		return common.ErrorNotFound
	}
	now := r.s.tick()
	r.s.tokens[token] = models.RefreshToken{
		ID: newID(), UserID: userID, Token: token, Expires: now.Add(validity), CreatedAt: now,
	}
	return nil
}

func (r *RefreshTokenRepository) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rt, ok := r.s.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rt, nil
}

func (r *RefreshTokenRepository) Delete(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tokens[token]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.tokens, token)
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for tok, rt := range r.s.tokens {
		if !rt.Expires.After(now) {
			delete(r.s.tokens, tok)
			n++
		}
	}
	return n, nil
}
