package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const adminSecret = "admin-secret"

func newRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", RequireAdmin(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenantId": AdminTenant(c)})
	})
	return r
}

func doRequest(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAdmin(t *testing.T) {
	r := newRouter(adminSecret)

	valid, err := GenerateAdminToken(adminSecret, "c1", "usher@example.org", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAdminToken() error = %v", err)
	}
	otherSecret, err := GenerateAdminToken("other", "c1", "", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAdminToken() error = %v", err)
	}
	noTenant, err := GenerateAdminToken(adminSecret, "", "", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAdminToken() error = %v", err)
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &AdminClaims{
		TenantID: "c1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(adminSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &AdminClaims{
		TenantID: "c1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString(none) error = %v", err)
	}

	testCases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + otherSecret, http.StatusUnauthorized},
		{"no tenant", "Bearer " + noTenant, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"alg none", "Bearer " + unsigned, http.StatusUnauthorized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(r, tc.header)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
		})
	}

	w := doRequest(r, "Bearer "+valid)
	if body := w.Body.String(); body != `{"tenantId":"c1"}` {
		t.Errorf("body = %s, want tenant from token", body)
	}
}

func TestRequireAdminDisabledWithoutSecret(t *testing.T) {
	r := newRouter("")

	w := doRequest(r, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when guard is off", w.Code)
	}
	if body := w.Body.String(); body != `{"tenantId":""}` {
		t.Errorf("body = %s, want empty tenant", body)
	}
}
