package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := FromViper(v)

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.StoreDriver != StorePostgres {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, StorePostgres)
	}
	if cfg.CheckinTokenTTL != 30*time.Minute {
		t.Errorf("CheckinTokenTTL = %v, want 30m", cfg.CheckinTokenTTL)
	}
	if cfg.MemberInviteTTL != 7*24*time.Hour {
		t.Errorf("MemberInviteTTL = %v, want 168h", cfg.MemberInviteTTL)
	}
	if cfg.RateLimitWindow != 10*time.Minute || cfg.RateLimitMaxAttempts != 30 {
		t.Errorf("rate limit = %v/%d, want 10m/30", cfg.RateLimitWindow, cfg.RateLimitMaxAttempts)
	}
	if cfg.CheckinTokenSecret != "" {
		t.Errorf("CheckinTokenSecret = %q, want empty by default", cfg.CheckinTokenSecret)
	}
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORE_DRIVER", " Redis ")
	v.Set("CHECKIN_TOKEN_SECRET", "s3cret")
	v.Set("CHECKIN_TOKEN_TTL_MINUTES", 45)
	v.Set("CHECKIN_RATE_LIMIT_MAX_ATTEMPTS", 0)
	v.Set("PUBLIC_BASE_URL", "https://app.example.org/")
	v.Set("PHONE_COUNTRY_CODE", "+233")
	v.Set("CORS_ALLOWED_ORIGINS", "https://a.example.org, ,https://b.example.org")

	cfg := FromViper(v)

	if cfg.StoreDriver != StoreRedis {
		t.Errorf("StoreDriver = %q, want %q", cfg.StoreDriver, StoreRedis)
	}
	if cfg.CheckinTokenTTL != 45*time.Minute {
		t.Errorf("CheckinTokenTTL = %v, want 45m", cfg.CheckinTokenTTL)
	}
	if cfg.RateLimitMaxAttempts != 30 {
		t.Errorf("RateLimitMaxAttempts = %d, want fallback 30", cfg.RateLimitMaxAttempts)
	}
	if cfg.PublicBaseURL != "https://app.example.org" {
		t.Errorf("PublicBaseURL = %q, want trailing slash trimmed", cfg.PublicBaseURL)
	}
	if cfg.PhoneCountryCode != "233" {
		t.Errorf("PhoneCountryCode = %q, want 233", cfg.PhoneCountryCode)
	}
	want := []string{"https://a.example.org", "https://b.example.org"}
	if !reflect.DeepEqual(cfg.CORSAllowedOrigins, want) {
		t.Errorf("CORSAllowedOrigins = %v, want %v", cfg.CORSAllowedOrigins, want)
	}

	settings := cfg.Checkin()
	if settings.Secret != "s3cret" || settings.TokenTTL != 45*time.Minute || settings.RateLimitMax != 30 {
		t.Errorf("Checkin() = %+v", settings)
	}
}
