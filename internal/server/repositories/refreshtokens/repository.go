// Package refreshtokens stores the opaque refresh tokens issued at login.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

type Repository interface {
	// Create stores token for userID, expiring at now+validity.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Find returns common.ErrorNotFound when the token is unknown.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete returns common.ErrorNotFound when nothing was removed, which
	// lets rotation detect a token that was already spent.
	Delete(ctx context.Context, token string) error

	// DeleteExpired purges tokens past their expiry and reports how many went.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
