package database

import "time"

// Platform identifies the social network an account publishes to.
type Platform string

const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformPinterest Platform = "pinterest"
	PlatformTwitter   Platform = "twitter"
)

// Platforms lists every supported platform.
var Platforms = []Platform{
	PlatformLinkedIn, PlatformFacebook, PlatformInstagram, PlatformPinterest, PlatformTwitter,
}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	StatusDraft     PostStatus = "draft"
	StatusScheduled PostStatus = "scheduled"
	StatusPosted    PostStatus = "posted"
	StatusFailed    PostStatus = "failed"
)

// Terminal reports whether the scheduler will never revisit a post in this status.
func (s PostStatus) Terminal() bool {
	return s == StatusPosted || s == StatusFailed
}

// PostOrigin records which path created a post.
type PostOrigin string

const (
	OriginManual     PostOrigin = "manual"
	OriginAutomation PostOrigin = "automation"
)

// ErrorHandling is the per-profile failure policy.
type ErrorHandling string

const (
	ErrorHandlingContinue ErrorHandling = "continue"
	ErrorHandlingStop     ErrorHandling = "stop"
)

// Schedule is an account's recurring posting cadence in its own timezone.
type Schedule struct {
	Times    []string // "HH:MM" local times
	Timezone string   // IANA name, empty means UTC
}

// Account is a connected publishing destination.
type Account struct {
	ID          int64
	UserID      string
	Platform    Platform
	Name        string
	ExternalRef *string
	IsActive    bool
	Schedule    Schedule
	Niche       *string
	Tone        *string
	Pattern     *string
	CreatedAt   *string
}

// AutomationProfile enables recurring generation for one account.
type AutomationProfile struct {
	AccountID     int64
	BatchSize     int
	ErrorHandling ErrorHandling
	Enabled       bool
	UpdatedAt     *string
}

// Post is a unit of publishing work and the durable record of its outcome.
type Post struct {
	ID             int64
	AccountID      int64
	Platform       Platform
	Content        string
	Hashtags       []string
	MediaURLs      []string
	Status         PostStatus
	Origin         PostOrigin
	ScheduledAt    *time.Time
	PostedAt       *time.Time
	ExternalPostID *string
	PostURL        *string
	ErrorMessage   *string
	PredictedScore *float64
	ActualScore    *float64
	ClaimedBy      *string
	ClaimedAt      *time.Time
	CreatedAt      *string
	UpdatedAt      *string
}

// NewPost holds the fields supplied when creating a post.
type NewPost struct {
	AccountID      int64
	Platform       Platform
	Content        string
	Hashtags       []string
	MediaURLs      []string
	Status         PostStatus
	Origin         PostOrigin
	ScheduledAt    *time.Time
	PredictedScore *float64
	ClaimedBy      *string
	ClaimedAt      *time.Time // defaults to now when ClaimedBy is set
}

// PostResult is the terminal outcome written back to a post.
type PostResult struct {
	Status         PostStatus
	Content        *string
	Hashtags       []string
	MediaURLs      []string
	PostedAt       *time.Time
	ExternalPostID *string
	PostURL        *string
	ErrorMessage   *string
	PredictedScore *float64
}

// Stats contains aggregate database statistics.
type Stats struct {
	Accounts        int
	ActiveAccounts  int
	EnabledProfiles int
	ScheduledPosts  int
	PostedPosts     int
	FailedPosts     int
}
