package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"apzla-backend/config"
	"apzla-backend/logger"
	"apzla-backend/models"
	"apzla-backend/store"
	"apzla-backend/tokens"
)

// InviteService issues member self-registration links. Invite tokens are
// stateless: no session record, no service code, no rate limit.
type InviteService struct {
	store     store.Store
	directory *Directory
	settings  config.CheckinSettings
	clock     Clock
}

func NewInviteService(st store.Store, directory *Directory, settings config.CheckinSettings, clock Clock) *InviteService {
	if clock == nil {
		clock = SystemClock{}
	}
	if settings.InviteTTL <= 0 {
		settings.InviteTTL = 7 * 24 * time.Hour
	}
	return &InviteService{store: st, directory: directory, settings: settings, clock: clock}
}

func (s *InviteService) Issue(ctx context.Context, req models.IssueInviteRequest) (*models.IssueInviteResponse, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return nil, newError(KindValidation, "tenantId is required")
	}
	if s.settings.Secret == "" {
		return nil, newError(KindConfig, msgMissingSecret)
	}

	baseURL, err := resolveBaseURL(ctx, s.store, tenantID, req.BaseURL, s.settings.PublicBaseURL)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.settings.InviteTTL).Truncate(time.Second)

	token, err := tokens.Sign(tokens.Claims{
		TenantID:  tenantID,
		Type:      models.TokenTypeMemberInvite,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}, s.settings.Secret)
	if err != nil {
		return nil, wrapError(KindConfig, msgMissingSecret, err)
	}

	link := buildLink(baseURL, "/register", token)
	logger.Info("issued member invite", logger.Fields{"tenantId": tenantID})

	return &models.IssueInviteResponse{
		Token:      token,
		Link:       link,
		QRImageURL: qrImageURL(s.settings.QRImageBaseURL, link),
		ExpiresAt:  expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// Verify decodes an invite token and checks it is one.
func (s *InviteService) Verify(ctx context.Context, token string) (*tokens.Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, newError(KindValidation, "token is required")
	}
	if s.settings.Secret == "" {
		return nil, newError(KindConfig, msgMissingSecret)
	}

	claims, err := tokens.Verify(token, s.settings.Secret, s.clock.Now())
	switch {
	case errors.Is(err, tokens.ErrExpired):
		return nil, newError(KindTokenExpired, msgInviteExpired)
	case errors.Is(err, tokens.ErrSignatureMismatch):
		return nil, newError(KindSignatureMismatch, msgInvalidInvite)
	case err != nil:
		return nil, wrapError(KindInvalidToken, msgInvalidInvite, err)
	}

	if claims.Type != models.TokenTypeMemberInvite {
		return nil, newError(KindWrongTokenType, msgNotAnInvite)
	}
	if claims.TenantID == "" {
		return nil, newError(KindInvalidToken, msgInvalidInvite)
	}
	return claims, nil
}

// Register submits the directory-entry form an invite grants.
func (s *InviteService) Register(ctx context.Context, req models.RegisterMemberRequest) (*models.Member, error) {
	claims, err := s.Verify(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	return s.directory.Register(ctx, models.Member{
		TenantID: claims.TenantID,
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Source:   models.TokenTypeMemberInvite,
	})
}
