package services

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"apzla-backend/config"
	"apzla-backend/logger"
	"apzla-backend/models"
	"apzla-backend/store"
	"apzla-backend/tokens"
)

// CheckinService issues check-in tokens and redeems them into attendance.
type CheckinService struct {
	store     store.Store
	directory *Directory
	settings  config.CheckinSettings
	clock     Clock
	random    io.Reader
}

// NewCheckinService wires the service. A nil clock or random source falls
// back to the system clock and crypto/rand.
func NewCheckinService(st store.Store, directory *Directory, settings config.CheckinSettings, clock Clock, random io.Reader) *CheckinService {
	if clock == nil {
		clock = SystemClock{}
	}
	if random == nil {
		random = rand.Reader
	}
	if settings.TokenTTL <= 0 {
		settings.TokenTTL = 30 * time.Minute
	}
	if settings.RateLimitWindow <= 0 {
		settings.RateLimitWindow = 10 * time.Minute
	}
	if settings.RateLimitMax <= 0 {
		settings.RateLimitMax = 30
	}
	return &CheckinService{
		store:     st,
		directory: directory,
		settings:  settings,
		clock:     clock,
		random:    random,
	}
}

// Issue creates a check-in session and returns the signed token, link and
// service code for it.
func (s *CheckinService) Issue(ctx context.Context, req models.IssueCheckinRequest) (*models.IssueCheckinResponse, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	serviceDate := strings.TrimSpace(req.ServiceDate)
	if tenantID == "" || serviceDate == "" {
		return nil, newError(KindValidation, "tenantId and serviceDate are required")
	}
	if _, err := time.Parse("2006-01-02", serviceDate); err != nil {
		return nil, newError(KindValidation, "serviceDate must be formatted as YYYY-MM-DD")
	}

	serviceType := strings.TrimSpace(req.ServiceType)
	if serviceType == "" {
		serviceType = models.DefaultServiceType
	}

	mode := strings.ToUpper(strings.TrimSpace(req.Mode))
	switch mode {
	case "":
		mode = models.ModeAdmin
	case models.ModeAdmin, models.ModeSelf:
	default:
		return nil, newError(KindValidation, "mode must be ADMIN or SELF")
	}

	personID := strings.TrimSpace(req.PersonID)
	if personID != "" {
		if _, err := uuid.Parse(personID); err != nil {
			return nil, newError(KindValidation, msgInvalidPersonID)
		}
	}

	if s.settings.Secret == "" {
		return nil, newError(KindConfig, msgMissingSecret)
	}

	baseURL, err := resolveBaseURL(ctx, s.store, tenantID, req.BaseURL, s.settings.PublicBaseURL)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewRandomFromReader(s.random)
	if err != nil {
		return nil, wrapError(KindInternal, "failed to generate nonce", err)
	}
	nonce := id.String()

	serviceCode, err := generateServiceCode(s.random)
	if err != nil {
		return nil, wrapError(KindInternal, "failed to generate service code", err)
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.settings.TokenTTL).Truncate(time.Second)

	token, err := tokens.Sign(tokens.Claims{
		TenantID:    tenantID,
		ServiceDate: serviceDate,
		ServiceType: serviceType,
		Nonce:       nonce,
		Mode:        mode,
		Type:        models.TokenTypeCheckin,
		IssuedAt:    now.Unix(),
		ExpiresAt:   expiresAt.Unix(),
	}, s.settings.Secret)
	if err != nil {
		return nil, wrapError(KindConfig, msgMissingSecret, err)
	}

	session := models.CheckinSession{
		Nonce:            nonce,
		TenantID:         tenantID,
		ServiceDate:      serviceDate,
		ServiceType:      serviceType,
		ServiceCode:      serviceCode,
		Mode:             mode,
		PersonID:         personID,
		RecipientContact: strings.TrimSpace(req.RecipientContact),
		ExpiresAt:        models.InstantOf(expiresAt),
		Consumed:         false,
		Status:           models.SessionStatusIssued,
		CreatedAt:        models.InstantOf(now),
	}
	if err := s.store.Set(ctx, models.CollectionCheckinSessions, nonce, session); err != nil {
		logger.Error("failed to write check-in session", logger.Fields{"nonce": nonce, "tenantId": tenantID, "error": err})
		return nil, wrapError(KindStore, msgStoreFailure, err)
	}

	link := buildLink(baseURL, "/checkin", token)
	if session.RecipientContact != "" {
		s.queueNotification(ctx, tenantID, session.RecipientContact, link, now)
	}

	logger.Info("issued check-in token", logger.Fields{"nonce": nonce, "tenantId": tenantID, "serviceDate": serviceDate, "mode": mode})

	return &models.IssueCheckinResponse{
		Token:       token,
		Nonce:       nonce,
		Link:        link,
		QRImageURL:  qrImageURL(s.settings.QRImageBaseURL, link),
		ServiceCode: serviceCode,
		Mode:        mode,
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// queueNotification hands the link to the outbound messaging worker. A
// failure here does not invalidate the issued token.
func (s *CheckinService) queueNotification(ctx context.Context, tenantID, to, link string, now time.Time) {
	n := models.Notification{
		TenantID:  tenantID,
		To:        to,
		Subject:   "Your check-in link",
		Link:      link,
		Status:    "queued",
		CreatedAt: models.InstantOf(now),
	}
	if err := s.store.Set(ctx, models.CollectionNotifications, uuid.NewString(), n); err != nil {
		logger.Warn("failed to queue check-in notification", logger.Fields{"tenantId": tenantID, "error": err})
	}
}

// GetSession returns a session owned by tenantID. Sessions of other tenants
// are reported as not found.
func (s *CheckinService) GetSession(ctx context.Context, tenantID, nonce string) (*models.CheckinSession, error) {
	var session models.CheckinSession
	err := s.store.Get(ctx, models.CollectionCheckinSessions, nonce, &session)
	if errors.Is(err, store.ErrNotFound) || (err == nil && session.TenantID != tenantID) {
		return nil, newError(KindSessionNotFound, msgSessionNotFound)
	}
	if err != nil {
		return nil, wrapError(KindStore, msgStoreFailure, err)
	}
	return &session, nil
}

// CloseSession stops a session from accepting further check-ins. An ADMIN
// session is also marked consumed.
func (s *CheckinService) CloseSession(ctx context.Context, tenantID, nonce string) (*models.CheckinSession, error) {
	var session models.CheckinSession
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Get(ctx, models.CollectionCheckinSessions, nonce, &session); err != nil {
			return err
		}
		if session.TenantID != tenantID {
			return store.ErrNotFound
		}
		fields := map[string]any{"closed": true}
		session.Closed = true
		if session.EffectiveMode() == models.ModeAdmin {
			fields["consumed"] = true
			session.Consumed = true
		}
		return tx.Update(ctx, models.CollectionCheckinSessions, nonce, fields)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindSessionNotFound, msgSessionNotFound)
	}
	if err != nil {
		logger.Error("failed to close check-in session", logger.Fields{"nonce": nonce, "tenantId": tenantID, "error": err})
		return nil, wrapError(KindStore, msgStoreFailure, err)
	}

	logger.Info("closed check-in session", logger.Fields{"nonce": nonce, "tenantId": tenantID})
	return &session, nil
}
