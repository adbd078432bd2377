package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"apzla-backend/models"
	"apzla-backend/store"
)

func RateLimitKey(nonce, clientID string) string {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = "anonymous"
	}
	return nonce + "_" + clientID
}

// consumeAttempt counts one redemption attempt for (nonce, clientID) in a
// fixed window and fails with TooManyAttempts once the ceiling is passed.
// The counter is written before the check so the lockout persists when the
// caller commits the transaction.
func (s *CheckinService) consumeAttempt(ctx context.Context, tx store.Tx, nonce, clientID string, now time.Time) error {
	key := RateLimitKey(nonce, clientID)

	var attempt models.RateLimitAttempt
	err := tx.Get(ctx, models.CollectionRateLimits, key, &attempt)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if errors.Is(err, store.ErrNotFound) || now.Sub(attempt.WindowStartedAt.Time()) >= s.settings.RateLimitWindow {
		attempt = models.RateLimitAttempt{
			Nonce:           nonce,
			ClientID:        strings.TrimSpace(clientID),
			WindowStartedAt: models.InstantOf(now),
		}
	}
	attempt.Count++
	attempt.LastAttemptAt = models.InstantOf(now)

	if err := tx.Set(ctx, models.CollectionRateLimits, key, attempt); err != nil {
		return err
	}
	if attempt.Count > s.settings.RateLimitMax {
		return newError(KindTooManyAttempts, msgTooManyAttempts)
	}
	return nil
}
