package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"apzla-backend/logger"
	"apzla-backend/models"
	"apzla-backend/store"
	"apzla-backend/tokens"
)

// RedeemRequest is one attempt to turn a check-in token into attendance.
// Mode is the channel the attempt arrived on and must match the session.
type RedeemRequest struct {
	Token       string
	ServiceCode string
	Phone       string
	ClientID    string
	Mode        string
}

func AttendanceKey(tenantID, serviceDate, serviceType, personID string) string {
	return tenantID + ":" + serviceDate + "_" + serviceType + "_" + personID
}

func sourceFor(mode string) string {
	if mode == models.ModeSelf {
		return models.SourceSelfQR
	}
	return models.SourceQRVerify
}

// VerifyAndRedeem validates the token against its session and records at
// most one attendance mark for the resolved person. Rate-limit accounting,
// the attendance insert and the session counters commit together.
func (s *CheckinService) VerifyAndRedeem(ctx context.Context, req RedeemRequest) (*models.CheckinResult, error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, newError(KindValidation, "token is required")
	}
	if req.Mode != models.ModeSelf {
		req.Mode = models.ModeAdmin
	}
	if req.Mode == models.ModeSelf {
		if strings.TrimSpace(req.ServiceCode) == "" {
			return nil, newError(KindValidation, "serviceCode is required")
		}
		if strings.TrimSpace(req.Phone) == "" {
			return nil, newError(KindValidation, "phone is required")
		}
	}
	if s.settings.Secret == "" {
		return nil, newError(KindConfig, msgMissingSecret)
	}

	now := s.clock.Now()

	claims, err := tokens.Verify(req.Token, s.settings.Secret, now)
	switch {
	case errors.Is(err, tokens.ErrExpired):
		s.markExpired(ctx, claims)
		return nil, newError(KindTokenExpired, msgTokenExpired)
	case errors.Is(err, tokens.ErrSignatureMismatch):
		return nil, newError(KindSignatureMismatch, msgBadSignature)
	case err != nil:
		return nil, wrapError(KindInvalidToken, msgInvalidToken, err)
	}
	if claims.Nonce == "" || (claims.Type != "" && claims.Type != models.TokenTypeCheckin) {
		return nil, newError(KindInvalidToken, msgInvalidToken)
	}

	var session models.CheckinSession
	err = s.store.Get(ctx, models.CollectionCheckinSessions, claims.Nonce, &session)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindSessionNotFound, msgSessionNotFound)
	}
	if err != nil {
		logger.Error("failed to load check-in session", logger.Fields{"nonce": claims.Nonce, "tenantId": claims.TenantID, "error": err})
		return nil, wrapError(KindStore, msgStoreFailure, err)
	}

	if err := s.checkPolicy(&session, claims, req.Mode, now); err != nil {
		if KindOf(err) == KindTokenExpired {
			s.markExpired(ctx, claims)
		}
		return nil, err
	}

	var (
		result    models.CheckinResult
		rejection error
	)
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		// The store may replay this function on conflict.
		result = models.CheckinResult{}
		rejection = nil

		var current models.CheckinSession
		if err := tx.Get(ctx, models.CollectionCheckinSessions, session.Nonce, &current); err != nil {
			return err
		}
		if current.Closed {
			return newError(KindPolicyViolation, msgSessionClosed)
		}

		// Every attempt that looks a person up by phone is counted.
		if req.Mode == models.ModeSelf || current.PersonID == "" {
			if err := s.consumeAttempt(ctx, tx, current.Nonce, req.ClientID, now); err != nil {
				if KindOf(err) == KindTooManyAttempts {
					rejection = err
					return nil
				}
				return err
			}
		}
		if req.Mode == models.ModeSelf {
			if strings.TrimSpace(req.ServiceCode) != current.ServiceCode {
				rejection = newError(KindPolicyViolation, msgWrongServiceCode)
				return nil
			}
		}

		personID, err := s.resolvePerson(ctx, tx, &current, req.Phone)
		if err != nil {
			if KindOf(err) == KindPersonNotFound {
				rejection = err
				return nil
			}
			return err
		}

		if req.Mode == models.ModeAdmin && current.Consumed && current.RedeemedBy != personID {
			return newError(KindPolicyViolation, msgAlreadyUsed)
		}

		alreadyPresent, err := recordAttendance(ctx, tx, models.Attendance{
			PersonID:    personID,
			TenantID:    current.TenantID,
			ServiceDate: current.ServiceDate,
			ServiceType: current.ServiceType,
			Status:      models.AttendancePresent,
			Source:      sourceFor(req.Mode),
			Nonce:       current.Nonce,
			CreatedAt:   models.InstantOf(now),
		})
		if err != nil {
			return err
		}

		fields := map[string]any{
			"usedCount":         current.UsedCount + 1,
			"verificationCount": current.VerificationCount + 1,
			"lastUsedAt":        models.InstantOf(now),
			"lastVerifiedAt":    models.InstantOf(now),
			"status":            models.SessionStatusVerified,
		}
		if req.Mode == models.ModeAdmin {
			fields["consumed"] = true
			fields["redeemedBy"] = personID
		}
		if err := tx.Update(ctx, models.CollectionCheckinSessions, current.Nonce, fields); err != nil {
			return err
		}

		result = models.CheckinResult{
			PersonID:       personID,
			ServiceDate:    current.ServiceDate,
			ServiceType:    current.ServiceType,
			AlreadyPresent: alreadyPresent,
		}
		return nil
	})
	if err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) && svcErr.Kind != KindStore {
			return nil, svcErr
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindSessionNotFound, msgSessionNotFound)
		}
		logger.Error("check-in transaction failed", logger.Fields{"nonce": session.Nonce, "tenantId": session.TenantID, "error": err})
		return nil, wrapError(KindStore, msgStoreFailure, err)
	}
	if rejection != nil {
		logger.Info("check-in rejected", logger.Fields{"nonce": session.Nonce, "tenantId": session.TenantID, "reason": KindOf(rejection).String()})
		return nil, rejection
	}

	logger.Info("check-in recorded", logger.Fields{
		"nonce":          session.Nonce,
		"tenantId":       session.TenantID,
		"personId":       result.PersonID,
		"alreadyPresent": result.AlreadyPresent,
	})
	return &result, nil
}

// checkPolicy runs the checks that need no transaction. The service code is
// compared inside the transaction, after the attempt has been counted.
func (s *CheckinService) checkPolicy(session *models.CheckinSession, claims *tokens.Claims, mode string, now time.Time) error {
	if session.TenantID != claims.TenantID || session.ServiceDate != claims.ServiceDate {
		return newError(KindPolicyViolation, msgSessionMismatch)
	}
	if claims.Mode != "" && claims.Mode != session.EffectiveMode() {
		return newError(KindPolicyViolation, msgSessionMismatch)
	}
	if session.EffectiveMode() != mode {
		return newError(KindPolicyViolation, msgWrongChannel)
	}
	if session.Closed {
		return newError(KindPolicyViolation, msgSessionClosed)
	}
	if !session.ExpiresAt.IsZero() && !now.Before(session.ExpiresAt.Time()) {
		return newError(KindTokenExpired, msgTokenExpired)
	}
	return nil
}

func (s *CheckinService) resolvePerson(ctx context.Context, tx store.Tx, session *models.CheckinSession, phone string) (string, error) {
	if session.EffectiveMode() == models.ModeAdmin && session.PersonID != "" {
		if err := s.directory.EnsureMember(ctx, tx, session.TenantID, session.PersonID); err != nil {
			return "", err
		}
		return session.PersonID, nil
	}
	if strings.TrimSpace(phone) == "" {
		return "", newError(KindValidation, "phone is required")
	}
	return s.directory.ResolveByPhone(ctx, tx, session.TenantID, phone)
}

// markExpired flags the session named by an expired token. Best effort: the
// caller already knows the outcome.
func (s *CheckinService) markExpired(ctx context.Context, claims *tokens.Claims) {
	if claims == nil || claims.Nonce == "" {
		return
	}
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var session models.CheckinSession
		if err := tx.Get(ctx, models.CollectionCheckinSessions, claims.Nonce, &session); err != nil {
			return err
		}
		if session.TenantID != claims.TenantID || session.Status == models.SessionStatusExpired {
			return nil
		}
		return tx.Update(ctx, models.CollectionCheckinSessions, claims.Nonce, map[string]any{"status": models.SessionStatusExpired})
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("failed to mark check-in session expired", logger.Fields{"nonce": claims.Nonce, "tenantId": claims.TenantID, "error": err})
	}
}

// recordAttendance inserts the attendance mark unless one already exists
// under the deterministic key, and reports whether it did.
func recordAttendance(ctx context.Context, tx store.Tx, a models.Attendance) (bool, error) {
	key := AttendanceKey(a.TenantID, a.ServiceDate, a.ServiceType, a.PersonID)

	err := tx.Get(ctx, models.CollectionAttendance, key, nil)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	return false, tx.Set(ctx, models.CollectionAttendance, key, a)
}

// MarkAttendance records an usher's manual check-in for a known member.
func (s *CheckinService) MarkAttendance(ctx context.Context, req models.MarkAttendanceRequest) (*models.CheckinResult, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	serviceDate := strings.TrimSpace(req.ServiceDate)
	personID := strings.TrimSpace(req.PersonID)
	if tenantID == "" || serviceDate == "" || personID == "" {
		return nil, newError(KindValidation, "tenantId, serviceDate and personId are required")
	}
	if _, err := time.Parse("2006-01-02", serviceDate); err != nil {
		return nil, newError(KindValidation, "serviceDate must be formatted as YYYY-MM-DD")
	}
	if _, err := uuid.Parse(personID); err != nil {
		return nil, newError(KindValidation, msgInvalidPersonID)
	}
	serviceType := strings.TrimSpace(req.ServiceType)
	if serviceType == "" {
		serviceType = models.DefaultServiceType
	}

	now := s.clock.Now()
	var alreadyPresent bool
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := s.directory.EnsureMember(ctx, tx, tenantID, personID); err != nil {
			return err
		}
		var err error
		alreadyPresent, err = recordAttendance(ctx, tx, models.Attendance{
			PersonID:    personID,
			TenantID:    tenantID,
			ServiceDate: serviceDate,
			ServiceType: serviceType,
			Status:      models.AttendancePresent,
			Source:      models.SourceAdmin,
			CreatedAt:   models.InstantOf(now),
		})
		return err
	})
	if err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) && svcErr.Kind != KindStore {
			return nil, svcErr
		}
		logger.Error("failed to mark attendance", logger.Fields{"tenantId": tenantID, "personId": personID, "error": err})
		return nil, wrapError(KindStore, msgStoreFailure, err)
	}

	return &models.CheckinResult{
		PersonID:       personID,
		ServiceDate:    serviceDate,
		ServiceType:    serviceType,
		AlreadyPresent: alreadyPresent,
	}, nil
}
