package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the check-in and member API on api. Routes that
// issue or manage sessions go through admin.
func RegisterRoutes(api *gin.RouterGroup, checkins *CheckinHandler, members *MemberHandler, admin gin.HandlerFunc) {
	// Check-in routes
	api.POST("/checkin/issue", admin, checkins.IssueToken)
	api.POST("/checkin/verify", checkins.Verify)
	api.POST("/checkin/self", checkins.SelfCheckin)
	api.GET("/checkin/sessions/:nonce", admin, checkins.GetSession)
	api.POST("/checkin/sessions/:nonce/close", admin, checkins.CloseSession)
	api.POST("/attendance", admin, checkins.MarkAttendance)

	// Member routes
	api.POST("/members", admin, members.CreateMember)
	api.GET("/members/:memberId", admin, members.GetMember)
	api.POST("/members/invites", admin, members.IssueInvite)
	api.POST("/members/invites/verify", members.VerifyInvite)
	api.POST("/members/register", members.Register)
}
