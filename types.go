package authcore

import (
	"context"
	"time"
)

// DeliveryMethod identifies how an MFA code reaches the user.
type DeliveryMethod string

const (
	// DeliveryEmail sends the code to the user's email address.
	DeliveryEmail DeliveryMethod = "email"
	// DeliverySMS sends the code to the user's phone.
	DeliverySMS DeliveryMethod = "sms"
	// DeliveryTOTP means the code is generated by the user's authenticator;
	// nothing is stored or dispatched server-side.
	DeliveryTOTP DeliveryMethod = "totp"
)

// ClientMetadata carries the client signals observed at login. All fields
// are optional; a nil ClientMetadata disables device fingerprinting for the
// attempt.
type ClientMetadata struct {
	UserAgent             string
	IPAddress             string
	ServerIP              string
	Platform              string
	Language              string
	Languages             []string
	TimezoneOffsetMinutes int

	// RequestedCampaignID pins the login to a specific campaign. Empty means
	// the resolver picks the default.
	RequestedCampaignID string
}

// MFASettings is the per-user MFA configuration read from the directory.
type MFASettings struct {
	Enabled              bool
	TOTPSecret           string // base32, empty when TOTP is not provisioned
	DeliveryMethod       DeliveryMethod
	BackupCodesRemaining int
}

// User is the account record the engine reads from the [UserDirectory].
type User struct {
	ID             string
	Email          string
	Phone          string
	FirstName      string
	LastName       string
	CanLogin       bool
	EmailConfirmed bool
	ResetRequired  bool
	IsAdmin        bool
	PasswordHash   string
	CampaignID     string
	Roles          []string
	MFA            MFASettings
}

// UserDirectory resolves accounts and owns the backup-code pool.
type UserDirectory interface {
	// FindUserByEmail returns (nil, nil) when no account matches.
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	// FindUserByID returns (nil, nil) when no account matches.
	FindUserByID(ctx context.Context, id string) (*User, error)
	// ConsumeBackupCode atomically removes code from the user's remaining
	// pool and reports whether it matched.
	ConsumeBackupCode(ctx context.Context, userID, code string) (bool, error)
}

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	Verify(password, storedHash string) (bool, error)
}

// DeviceDenialAlert is the operator notification payload emitted when a
// pending device verification is explicitly denied.
type DeviceDenialAlert struct {
	UserID         string
	Email          string
	VerificationID string
	Fingerprint    string
	DeniedAt       time.Time
	Metadata       *ClientMetadata
}

// Notifier dispatches out-of-band messages. Dispatch errors are surfaced to
// the calling operation; the engine never retries.
type Notifier interface {
	SendMFACode(ctx context.Context, destination string, method DeliveryMethod, code string, expiresAt time.Time) error
	SendDeviceVerification(ctx context.Context, user *User, meta *ClientMetadata, code string, expiresAt time.Time) error
	SendDeviceDeniedAlert(ctx context.Context, alert DeviceDenialAlert) error
}

// CampaignAssignment links a user to a campaign, optionally under a manager.
type CampaignAssignment struct {
	CampaignID string
	UserID     string
	ManagerID  string
	Role       string
}

// CampaignPermission grants a user a permission level within one campaign.
type CampaignPermission struct {
	CampaignID string
	UserID     string
	Level      string
}

// AccessProfile is the tenant view of a user as reported by the external
// access-profile provider.
type AccessProfile struct {
	IsGlobalAdmin      bool
	DefaultCampaignID  string
	AllowedCampaignIDs []string
	ManagedCampaignIDs []string
	AdminCampaignIDs   []string
	Assignments        []CampaignAssignment
	Permissions        []CampaignPermission
}

// AccessProfileProvider supplies campaign access profiles. The engine
// degrades to a single-campaign scope derived from the user record when the
// provider is absent or failing.
type AccessProfileProvider interface {
	GetAccessProfile(ctx context.Context, userID string) (*AccessProfile, error)
}

// CampaignScope is the resolved tenant scope embedded into each session.
type CampaignScope struct {
	IsGlobalAdmin      bool     `json:"isGlobalAdmin"`
	DefaultCampaignID  string   `json:"defaultCampaignId,omitempty"`
	ActiveCampaignID   string   `json:"activeCampaignId,omitempty"`
	AllowedCampaignIDs []string `json:"allowedCampaignIds,omitempty"`
	ManagedCampaignIDs []string `json:"managedCampaignIds,omitempty"`
	AdminCampaignIDs   []string `json:"adminCampaignIds,omitempty"`
	TenantContext      string   `json:"tenantContext,omitempty"`
}

// TenantSummary is the client-facing slice of a resolved scope.
type TenantSummary struct {
	ActiveCampaignID        string   `json:"activeCampaignId,omitempty"`
	AllowedCampaignIDs      []string `json:"allowedCampaignIds,omitempty"`
	IsGlobalAdmin           bool     `json:"isGlobalAdmin"`
	NeedsCampaignAssignment bool     `json:"needsCampaignAssignment"`
}

// TenantAccess is the full result of tenant resolution.
type TenantAccess struct {
	SessionScope            CampaignScope `json:"sessionScope"`
	ClientPayload           TenantSummary `json:"clientPayload"`
	Warnings                []string      `json:"warnings,omitempty"`
	NeedsCampaignAssignment bool          `json:"needsCampaignAssignment"`
}

// UserPayload is the decorated user returned on successful authentication
// and by GetSessionUser.
type UserPayload struct {
	ID            string
	Email         string
	FirstName     string
	LastName      string
	IsAdmin       bool
	CampaignID    string
	Tenant        *TenantSummary
	Authorization *AuthorizationProfile
}

// MFAChallengeInfo describes a pending MFA challenge to the client.
type MFAChallengeInfo struct {
	ChallengeID         string
	DeliveryMethod      DeliveryMethod
	MaskedDestination   string
	ExpiresAt           time.Time
	DeliveriesRemaining int
}

// DeviceVerificationInfo describes a pending device verification to the client.
type DeviceVerificationInfo struct {
	VerificationID string
	ExpiresAt      time.Time
}

// LoginResult is the outcome of Login, VerifyMFACode, and
// ConfirmDeviceVerification. Exactly one of Success, MFARequired, or
// DeviceVerificationRequired is set on a non-error result; ErrorCode is
// populated only by [FailureResult].
type LoginResult struct {
	Success   bool
	ErrorCode string

	Token              string
	ExpiresAt          time.Time
	TTLSeconds         int
	IdleTimeoutMinutes int

	User                    *UserPayload
	Tenant                  *TenantSummary
	Warnings                []string
	NeedsCampaignAssignment bool

	MFARequired bool
	MFA         *MFAChallengeInfo

	DeviceVerificationRequired bool
	Device                     *DeviceVerificationInfo
}

// DeliveryResult reports an MFA code dispatch.
type DeliveryResult struct {
	Method              DeliveryMethod
	MaskedDestination   string
	ExpiresAt           time.Time
	DeliveriesRemaining int
}

// SessionStatus is the outcome of KeepAlive.
type SessionStatus struct {
	Active             bool
	UserID             string
	ExpiresAt          time.Time
	LastActivityAt     time.Time
	IdleTimeoutMinutes int
	// Reason is set when Active is false: IDLE_TIMEOUT or ABSOLUTE_EXPIRY.
	Reason string
}

// SessionInfo describes an active session without exposing its token.
type SessionInfo struct {
	UserID         string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	RememberMe     bool
}
