package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"apzla-backend/config"
	"apzla-backend/models"
	"apzla-backend/store"
)

const testSecret = "test-secret"

var testStart = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store   *store.MemoryStore
	clock   *fakeClock
	dir     *Directory
	checkin *CheckinService
	invites *InviteService
}

func testSettings() config.CheckinSettings {
	return config.CheckinSettings{
		Secret:          testSecret,
		TokenTTL:        30 * time.Minute,
		InviteTTL:       7 * 24 * time.Hour,
		RateLimitWindow: 10 * time.Minute,
		RateLimitMax:    30,
		PublicBaseURL:   "https://app.example.org",
		QRImageBaseURL:  "https://qr.example.org/create",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, testSettings())
}

func newFixtureWith(t *testing.T, settings config.CheckinSettings) *fixture {
	t.Helper()

	st := store.NewMemoryStore()
	clock := &fakeClock{now: testStart}
	dir := NewDirectory(st, CountryCodeNormalizer("233"), clock)

	return &fixture{
		store:   st,
		clock:   clock,
		dir:     dir,
		checkin: NewCheckinService(st, dir, settings, clock, nil),
		invites: NewInviteService(st, dir, settings, clock),
	}
}

func (f *fixture) addMember(t *testing.T, tenantID, name, phone string) string {
	t.Helper()
	m, err := f.dir.Register(context.Background(), models.Member{TenantID: tenantID, Name: name, Phone: phone, Source: "test"})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", name, err)
	}
	return m.ID
}

func (f *fixture) issue(t *testing.T, req models.IssueCheckinRequest) *models.IssueCheckinResponse {
	t.Helper()
	resp, err := f.checkin.Issue(context.Background(), req)
	if err != nil {
		t.Fatalf("Issue(%+v) error = %v", req, err)
	}
	return resp
}

func (f *fixture) session(t *testing.T, nonce string) models.CheckinSession {
	t.Helper()
	var s models.CheckinSession
	if err := f.store.Get(context.Background(), models.CollectionCheckinSessions, nonce, &s); err != nil {
		t.Fatalf("Get(session %s) error = %v", nonce, err)
	}
	return s
}

func (f *fixture) attempts(t *testing.T, nonce, clientID string) int {
	t.Helper()
	var a models.RateLimitAttempt
	err := f.store.Get(context.Background(), models.CollectionRateLimits, RateLimitKey(nonce, clientID), &a)
	if errors.Is(err, store.ErrNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("Get(rate limit) error = %v", err)
	}
	return a.Count
}

func wantKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %v", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("error kind = %v (%v), want %v", got, err, want)
	}
}

// failingStore fails every write path.
type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Set(ctx context.Context, collection, key string, data any, opts ...store.SetOption) error {
	return f.err
}

func (f failingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return f.err
}
