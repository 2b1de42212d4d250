package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/crewdesk/authcore/store"
)

type sentMFACode struct {
	Destination string
	Method      DeliveryMethod
	Code        string
}

type sentDeviceCode struct {
	UserID string
	Code   string
}

type fakeNotifier struct {
	mu          sync.Mutex
	mfaCodes    []sentMFACode
	deviceCodes []sentDeviceCode
	denials     []DeviceDenialAlert
	failMFA     bool
	failDevice  bool
}

func (n *fakeNotifier) SendMFACode(_ context.Context, destination string, method DeliveryMethod, code string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failMFA {
		return errors.New("smtp unavailable")
	}
	n.mfaCodes = append(n.mfaCodes, sentMFACode{Destination: destination, Method: method, Code: code})
	return nil
}

func (n *fakeNotifier) SendDeviceVerification(_ context.Context, user *User, _ *ClientMetadata, code string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failDevice {
		return errors.New("smtp unavailable")
	}
	n.deviceCodes = append(n.deviceCodes, sentDeviceCode{UserID: user.ID, Code: code})
	return nil
}

func (n *fakeNotifier) SendDeviceDeniedAlert(_ context.Context, alert DeviceDenialAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.denials = append(n.denials, alert)
	return nil
}

func (n *fakeNotifier) lastMFACode(t *testing.T) sentMFACode {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.mfaCodes) == 0 {
		t.Fatal("expected an MFA code to have been sent")
	}
	return n.mfaCodes[len(n.mfaCodes)-1]
}

func (n *fakeNotifier) lastDeviceCode(t *testing.T) sentDeviceCode {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.deviceCodes) == 0 {
		t.Fatal("expected a device verification code to have been sent")
	}
	return n.deviceCodes[len(n.deviceCodes)-1]
}

type fakeDirectory struct {
	mu      sync.Mutex
	byEmail map[string]*User
	byID    map[string]*User
	backup  map[string][]string
	findErr error
}

func newFakeDirectory(users ...*User) *fakeDirectory {
	d := &fakeDirectory{
		byEmail: map[string]*User{},
		byID:    map[string]*User{},
		backup:  map[string][]string{},
	}
	for _, u := range users {
		d.add(u)
	}
	return d
}

func (d *fakeDirectory) add(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[u.Email] = u
	d.byID[u.ID] = u
}

func (d *fakeDirectory) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.byID[id]; ok {
		delete(d.byEmail, u.Email)
		delete(d.byID, id)
	}
}

func (d *fakeDirectory) FindUserByEmail(_ context.Context, email string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return nil, d.findErr
	}
	return d.byEmail[email], nil
}

func (d *fakeDirectory) FindUserByID(_ context.Context, id string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return nil, d.findErr
	}
	return d.byID[id], nil
}

func (d *fakeDirectory) ConsumeBackupCode(_ context.Context, userID, code string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	codes := d.backup[userID]
	for i, c := range codes {
		if c == code {
			d.backup[userID] = append(codes[:i], codes[i+1:]...)
			if u, ok := d.byID[userID]; ok && u.MFA.BackupCodesRemaining > 0 {
				u.MFA.BackupCodesRemaining--
			}
			return true, nil
		}
	}
	return false, nil
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*AccessProfile
	err      error
}

func (p *fakeProfiles) GetAccessProfile(_ context.Context, userID string) (*AccessProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.profiles[userID], nil
}

// plainVerifier keeps engine tests independent of argon2 cost parameters.
type plainVerifier struct{}

func (plainVerifier) Verify(password, storedHash string) (bool, error) {
	return storedHash == "plain:"+password, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine   *Engine
	redis    *redis.Client
	mini     *miniredis.Miniredis
	records  *store.Memory
	dir      *fakeDirectory
	notifier *fakeNotifier
	profiles *fakeProfiles
	clock    *testClock
}

func seedUser() *User {
	return &User{
		ID:             "u1",
		Email:          "alice@example.com",
		Phone:          "+15550001234",
		FirstName:      "Alice",
		LastName:       "Smith",
		CanLogin:       true,
		EmailConfirmed: true,
		PasswordHash:   "plain:correct-password-123",
		CampaignID:     "camp-1",
		Roles:          []string{"agent"},
	}
}

func testMetadata() *ClientMetadata {
	return &ClientMetadata{
		UserAgent:             "Mozilla/5.0 test",
		IPAddress:             "203.0.113.7",
		Platform:              "MacIntel",
		Language:              "en-US",
		Languages:             []string{"en-US", "en"},
		TimezoneOffsetMinutes: -300,
	}
}

func newTestEngine(t *testing.T, mutate func(*Config), users ...*User) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if len(users) == 0 {
		users = []*User{seedUser()}
	}

	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	records := store.NewMemory()
	dir := newFakeDirectory(users...)
	notifier := &fakeNotifier{}
	profiles := &fakeProfiles{profiles: map[string]*AccessProfile{}}
	clock := newTestClock()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRecordStore(records).
		WithUserDirectory(dir).
		WithNotifier(notifier).
		WithAccessProfiles(profiles).
		WithPasswordVerifier(plainVerifier{}).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		redis:    rdb,
		mini:     mr,
		records:  records,
		dir:      dir,
		notifier: notifier,
		profiles: profiles,
		clock:    clock,
	}
}
