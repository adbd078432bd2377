package models

const (
	TokenTypeCheckin      = "checkin"
	TokenTypeMemberInvite = "member-invite"
)

// Member is a directory entry for one person in a church.
type Member struct {
	ID              string  `json:"id"`
	TenantID        string  `json:"tenantId"`
	Name            string  `json:"name"`
	Phone           string  `json:"phone"`
	PhoneNormalized string  `json:"phoneNormalized"`
	Email           string  `json:"email,omitempty"`
	Source          string  `json:"source"`
	CreatedAt       Instant `json:"createdAt"`
}

// MemberPhoneIndex lists the members of one tenant sharing a normalized phone.
type MemberPhoneIndex struct {
	TenantID  string   `json:"tenantId"`
	Phone     string   `json:"phone"`
	MemberIDs []string `json:"memberIds"`
}

type IssueInviteRequest struct {
	TenantID string `json:"tenantId"`
	BaseURL  string `json:"baseUrl"`
}

type IssueInviteResponse struct {
	Token      string `json:"token"`
	Link       string `json:"link"`
	QRImageURL string `json:"qrImageUrl"`
	ExpiresAt  string `json:"expiresAt"`
}

type VerifyInviteRequest struct {
	Token string `json:"token" binding:"required"`
}

type RegisterMemberRequest struct {
	Token string `json:"token" binding:"required"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type CreateMemberRequest struct {
	TenantID string `json:"tenantId"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Email    string `json:"email"`
}
