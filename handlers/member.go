package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"apzla-backend/logger"
	"apzla-backend/models"
	"apzla-backend/services"
)

type MemberHandler struct {
	directory *services.Directory
	invites   *services.InviteService
}

func NewMemberHandler(directory *services.Directory, invites *services.InviteService) *MemberHandler {
	return &MemberHandler{directory: directory, invites: invites}
}

// CreateMember adds a directory entry on behalf of an admin.
func (h *MemberHandler) CreateMember(c *gin.Context) {
	var req models.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	tenantID, ok := scopeTenant(c, req.TenantID)
	if !ok {
		return
	}

	member, err := h.directory.Register(c.Request.Context(), models.Member{
		TenantID: tenantID,
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Source:   models.SourceAdmin,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info("member created by admin", logger.Fields{"tenantId": tenantID, "memberId": member.ID})
	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"member": member,
	})
}

func (h *MemberHandler) GetMember(c *gin.Context) {
	tenantID, ok := scopeTenant(c, c.Query("tenantId"))
	if !ok {
		return
	}

	member, err := h.directory.Get(c.Request.Context(), tenantID, c.Param("memberId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"member": member,
	})
}

func (h *MemberHandler) IssueInvite(c *gin.Context) {
	var req models.IssueInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	tenantID, ok := scopeTenant(c, req.TenantID)
	if !ok {
		return
	}
	req.TenantID = tenantID

	resp, err := h.invites.Issue(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"token":      resp.Token,
		"link":       resp.Link,
		"qrImageUrl": resp.QRImageURL,
		"expiresAt":  resp.ExpiresAt,
	})
}

// VerifyInvite lets the registration page check a link before showing the form.
func (h *MemberHandler) VerifyInvite(c *gin.Context) {
	var req models.VerifyInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token is required")
		return
	}

	claims, err := h.invites.Verify(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"tenantId": claims.TenantID,
	})
}

func (h *MemberHandler) Register(c *gin.Context) {
	var req models.RegisterMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token is required")
		return
	}

	member, err := h.invites.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info("member registered from invite", logger.Fields{"tenantId": member.TenantID, "memberId": member.ID})
	c.JSON(http.StatusCreated, gin.H{
		"status":   "success",
		"memberId": member.ID,
		"message":  "Registration complete",
	})
}
