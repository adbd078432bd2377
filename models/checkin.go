package models

// Check-in modes
const (
	ModeAdmin = "ADMIN"
	ModeSelf  = "SELF"
)

// Session status labels (display only)
const (
	SessionStatusIssued   = "issued"
	SessionStatusVerified = "verified"
	SessionStatusExpired  = "expired"
)

// Attendance sources
const (
	SourceQRVerify = "qr-verify"
	SourceSelfQR   = "self-qr"
	SourceAdmin    = "ADMIN"

	AttendancePresent = "PRESENT"
)

// Document collections
const (
	CollectionCheckinSessions = "checkinSessions"
	CollectionRateLimits      = "checkinRateLimits"
	CollectionAttendance      = "attendance"
	CollectionMembers         = "members"
	CollectionMemberPhones    = "memberPhones"
	CollectionTenants         = "tenants"
	CollectionNotifications   = "notificationQueue"
)

const DefaultServiceType = "Service"

// CheckinSession is the nonce-keyed record behind every check-in token.
// Consumed marks an ADMIN token as redeemed; Closed marks a SELF session
// as shut by an admin. Either one blocks further redemption.
type CheckinSession struct {
	Nonce             string  `json:"nonce"`
	TenantID          string  `json:"tenantId"`
	ServiceDate       string  `json:"serviceDate"`
	ServiceType       string  `json:"serviceType"`
	ServiceCode       string  `json:"serviceCode,omitempty"`
	Mode              string  `json:"mode"`
	PersonID          string  `json:"personId,omitempty"`
	RecipientContact  string  `json:"recipientContact,omitempty"`
	ExpiresAt         Instant `json:"expiresAt"`
	Consumed          bool    `json:"consumed"`
	Closed            bool    `json:"closed"`
	RedeemedBy        string  `json:"redeemedBy,omitempty"`
	UsedCount         int     `json:"usedCount"`
	VerificationCount int     `json:"verificationCount"`
	LastUsedAt        Instant `json:"lastUsedAt,omitempty"`
	LastVerifiedAt    Instant `json:"lastVerifiedAt,omitempty"`
	Status            string  `json:"status"`
	CreatedAt         Instant `json:"createdAt"`
}

// EffectiveMode treats sessions written without a mode as usher-assisted.
func (s *CheckinSession) EffectiveMode() string {
	if s.Mode == "" {
		return ModeAdmin
	}
	return s.Mode
}

// RateLimitAttempt counts redemption attempts per nonce and client within a fixed window.
type RateLimitAttempt struct {
	Nonce           string  `json:"nonce"`
	ClientID        string  `json:"clientId"`
	Count           int     `json:"count"`
	WindowStartedAt Instant `json:"windowStartedAt"`
	LastAttemptAt   Instant `json:"lastAttemptAt"`
}

type Attendance struct {
	PersonID    string  `json:"personId"`
	TenantID    string  `json:"tenantId"`
	ServiceDate string  `json:"serviceDate"`
	ServiceType string  `json:"serviceType"`
	Status      string  `json:"status"`
	Source      string  `json:"source"`
	Nonce       string  `json:"nonce,omitempty"`
	CreatedAt   Instant `json:"createdAt"`
}

// Tenant holds per-church settings the check-in flow reads.
type Tenant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PublicBaseURL string `json:"publicBaseUrl"`
}

type Notification struct {
	TenantID  string  `json:"tenantId"`
	To        string  `json:"to"`
	Subject   string  `json:"subject"`
	Link      string  `json:"link"`
	Status    string  `json:"status"`
	CreatedAt Instant `json:"createdAt"`
}

type IssueCheckinRequest struct {
	TenantID         string `json:"tenantId"`
	ServiceDate      string `json:"serviceDate"`
	ServiceType      string `json:"serviceType"`
	Mode             string `json:"mode"`
	BaseURL          string `json:"baseUrl"`
	PersonID         string `json:"personId"`
	RecipientContact string `json:"recipientContact"`
}

type IssueCheckinResponse struct {
	Token       string `json:"token"`
	Nonce       string `json:"nonce"`
	Link        string `json:"link"`
	QRImageURL  string `json:"qrImageUrl"`
	ServiceCode string `json:"serviceCode,omitempty"`
	Mode        string `json:"mode"`
	ExpiresAt   string `json:"expiresAt"`
}

type VerifyCheckinRequest struct {
	Token       string `json:"token" binding:"required"`
	ServiceCode string `json:"serviceCode"`
	Phone       string `json:"phone"`
}

type CheckinResult struct {
	PersonID       string `json:"personId"`
	ServiceDate    string `json:"serviceDate"`
	ServiceType    string `json:"serviceType"`
	AlreadyPresent bool   `json:"alreadyPresent"`
}

type MarkAttendanceRequest struct {
	TenantID    string `json:"tenantId" binding:"required"`
	ServiceDate string `json:"serviceDate" binding:"required"`
	ServiceType string `json:"serviceType"`
	PersonID    string `json:"personId" binding:"required"`
}
