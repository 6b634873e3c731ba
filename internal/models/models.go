// package models defines the data model for the imgx client
package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidModel = errors.New("invalid model")

// Model defines the base interface for persisted records kept by the client.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// MembershipTier names a plan.
type MembershipTier string

const (
	TierFree    MembershipTier = "free"
	TierVIP     MembershipTier = "vip"
	TierPremium MembershipTier = "premium"
)

const (
	freeDailyLimit   = 5
	freeStorageLimit = 100 * 1024 * 1024
	freeTerm         = 365 * 24 * time.Hour
)

// Membership is the user's plan and its usage counters.
type Membership struct {
	Tier          MembershipTier `json:"type"`
	StartDate     time.Time      `json:"startDate"`
	EndDate       time.Time      `json:"endDate"`
	Active        bool           `json:"isActive"`
	DailyUsage    int            `json:"dailyUsage"`
	MaxDailyUsage int            `json:"maxDailyUsage"`
	TotalStorage  int64          `json:"totalStorage"`
	UsedStorage   int64          `json:"usedStorage"`
	Features      []string       `json:"features"`
}

// DefaultMembership is the free tier granted to any account the server has not
// assigned a plan: 5 images a day, 100 MiB of storage, valid for a year from now.
func DefaultMembership(now time.Time) Membership {
	return Membership{
		Tier:          TierFree,
		StartDate:     now,
		EndDate:       now.Add(freeTerm),
		Active:        true,
		MaxDailyUsage: freeDailyLimit,
		TotalStorage:  freeStorageLimit,
		Features:      []string{"basic format conversion", "5 images per day"},
	}
}

// Remaining returns how many more images may be processed today.
// Paid tiers are not limited and report -1.
func (m Membership) Remaining() int {
	if m.Tier != TierFree {
		return -1
	}
	return max(m.MaxDailyUsage-m.DailyUsage, 0)
}

// Allow reports whether n more images fit in today's allowance.
func (m Membership) Allow(n int) bool {
	r := m.Remaining()
	return r < 0 || n <= r
}

// User is the full user record shown by profile and status commands.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Avatar      string     `json:"avatar,omitempty"`
	LoginMethod string     `json:"loginMethod"`
	LoggedIn    bool       `json:"isLoggedIn"`
	Membership  Membership `json:"membership"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt time.Time  `json:"lastLoginAt"`
}

// Validate checks the fields every stored user must carry.
func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidModel)
	}
	if u.Username == "" && u.Email == "" {
		return fmt.Errorf("%w: username or email is required", ErrInvalidModel)
	}
	if u.Membership.Tier == "" {
		return fmt.Errorf("%w: membership tier is required", ErrInvalidModel)
	}
	return nil
}

// WithMembership returns a copy of u using server when it names a tier.
// Otherwise u keeps its current membership, or the free tier if it has none.
func (u User) WithMembership(server *Membership, now time.Time) User {
	switch {
	case server != nil && server.Tier != "":
		u.Membership = *server
	case u.Membership.Tier == "":
		u.Membership = DefaultMembership(now)
	}
	return u
}
