// Package domain holds the core data types shared across the service:
// user accounts, activity records, and feed interactions.
package domain

import "time"

// Role determines what a user is allowed to do.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserStatus is the account lifecycle state. Archived accounts can no
// longer sign in.
type UserStatus string

const (
	StatusActive   UserStatus = "ACTIVE"
	StatusArchived UserStatus = "ARCHIVED"
)

// Education is the optional education section of a profile.
type Education struct {
	Degree         string `json:"degree,omitempty"`
	University     string `json:"university,omitempty"`
	GraduationYear int    `json:"graduationYear,omitempty"`
}

// Profile holds the free-form profile fields a user can edit.
type Profile struct {
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	LinkedIn  string    `json:"linkedin,omitempty"`
	GitHub    string    `json:"github,omitempty"`
	Website   string    `json:"website,omitempty"`
	Education Education `json:"education,omitzero"`
}

// User is a registered account. PasswordHash never leaves the process.
type User struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Role              Role       `json:"role"`
	Status            UserStatus `json:"status"`
	Credits           int        `json:"credits"`
	ProfileCompleted  bool       `json:"profileCompleted"`
	ProfileBonusGiven bool       `json:"profileBonusGiven"`
	LastLoginAt       *time.Time `json:"lastLoginDate,omitempty"`
	Profile           Profile    `json:"profile"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ProfileUpdate carries a partial profile edit. Nil fields are left
// untouched.
type ProfileUpdate struct {
	Name             *string  `json:"name,omitempty"`
	Profile          *Profile `json:"profile,omitempty"`
	ProfileCompleted *bool    `json:"profileCompleted,omitempty"`
}

// ActivityAction enumerates the recorded user actions.
type ActivityAction string

const (
	ActionLogin         ActivityAction = "login"
	ActionProfileUpdate ActivityAction = "profile_update"
	ActionSavedFeed     ActivityAction = "saved_feed"
	ActionSharedFeed    ActivityAction = "shared_feed"
	ActionReportedFeed  ActivityAction = "reported_feed"
)

// Activity is one entry in a user's activity log.
type Activity struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Action      ActivityAction `json:"action"`
	ReferenceID string         `json:"referenceId,omitempty"`
	CreatedAt   time.Time      `json:"timestamp"`
}

// InteractionType enumerates how a user can interact with a feed item.
type InteractionType string

const (
	InteractionLike   InteractionType = "like"
	InteractionReport InteractionType = "report"
	InteractionShare  InteractionType = "share"
	InteractionSave   InteractionType = "save"
)

// FeedInteraction records a user acting on a feed item. Data holds the
// item snapshot as it was served, so interactions survive upstream churn.
type FeedInteraction struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Type      InteractionType `json:"type"`
	Data      []byte          `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}
