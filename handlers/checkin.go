package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"apzla-backend/logger"
	"apzla-backend/models"
	"apzla-backend/services"
)

type CheckinHandler struct {
	checkins *services.CheckinService
}

func NewCheckinHandler(checkins *services.CheckinService) *CheckinHandler {
	return &CheckinHandler{checkins: checkins}
}

// IssueToken creates a check-in session and returns its link.
func (h *CheckinHandler) IssueToken(c *gin.Context) {
	var req models.IssueCheckinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	tenantID, ok := scopeTenant(c, req.TenantID)
	if !ok {
		return
	}
	req.TenantID = tenantID

	resp, err := h.checkins.Issue(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"token":       resp.Token,
		"nonce":       resp.Nonce,
		"link":        resp.Link,
		"qrImageUrl":  resp.QRImageURL,
		"serviceCode": resp.ServiceCode,
		"mode":        resp.Mode,
		"expiresAt":   resp.ExpiresAt,
	})
}

// Verify redeems an usher-scanned ADMIN token.
func (h *CheckinHandler) Verify(c *gin.Context) {
	h.redeem(c, models.ModeAdmin)
}

// SelfCheckin redeems a SELF token submitted from a member's own phone.
func (h *CheckinHandler) SelfCheckin(c *gin.Context) {
	h.redeem(c, models.ModeSelf)
}

func (h *CheckinHandler) redeem(c *gin.Context, mode string) {
	var req models.VerifyCheckinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token is required")
		return
	}

	result, err := h.checkins.VerifyAndRedeem(c.Request.Context(), services.RedeemRequest{
		Token:       req.Token,
		ServiceCode: req.ServiceCode,
		Phone:       req.Phone,
		ClientID:    c.ClientIP(),
		Mode:        mode,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Check-in recorded"
	if result.AlreadyPresent {
		message = "You are already checked in for this service"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"data":    result,
		"message": message,
	})
}

func (h *CheckinHandler) GetSession(c *gin.Context) {
	tenantID, ok := scopeTenant(c, c.Query("tenantId"))
	if !ok {
		return
	}

	session, err := h.checkins.GetSession(c.Request.Context(), tenantID, c.Param("nonce"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"session": session,
	})
}

func (h *CheckinHandler) CloseSession(c *gin.Context) {
	var req struct {
		TenantID string `json:"tenantId"`
	}
	// Body is optional; an admin token already names the tenant.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	tenantID, ok := scopeTenant(c, req.TenantID)
	if !ok {
		return
	}

	session, err := h.checkins.CloseSession(c.Request.Context(), tenantID, c.Param("nonce"))
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info("check-in session closed by admin", logger.Fields{"nonce": session.Nonce, "tenantId": tenantID})
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"session": session,
	})
}

// MarkAttendance is the usher's manual check-in.
func (h *CheckinHandler) MarkAttendance(c *gin.Context) {
	var req models.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	tenantID, ok := scopeTenant(c, req.TenantID)
	if !ok {
		return
	}
	req.TenantID = tenantID

	result, err := h.checkins.MarkAttendance(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   result,
	})
}
