// Package service implements the account workflows: registration,
// login, profile editing, and the login credit scheme.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/feedgate/feedgate/internal/domain"
	"github.com/feedgate/feedgate/internal/logging"
	"github.com/feedgate/feedgate/internal/store"
)

// Credit amounts awarded by the login scheme.
const (
	DailyLoginCredits   = 10
	ProfileBonusCredits = 50
	ManualTopUpCredits  = 10
)

var (
	// ErrEmailTaken means the registration email is already in use.
	ErrEmailTaken = errors.New("service: email already registered")
	// ErrUserNotFound means no account matches the given identity.
	ErrUserNotFound = errors.New("service: user not found")
	// ErrInvalidCredentials means the password did not match.
	ErrInvalidCredentials = errors.New("service: invalid credentials")
	// ErrAccountArchived means the account can no longer sign in.
	ErrAccountArchived = errors.New("service: account is archived")
)

// UserStore is the persistence surface the user service needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, upd *domain.ProfileUpdate) (*domain.User, error)
	AddCredits(ctx context.Context, id string, delta int) (int, error)
	ApplyLoginCredits(ctx context.Context, id string, loginAt time.Time, delta int, markBonusGiven bool) (*domain.User, error)
	SaveActivity(ctx context.Context, a *domain.Activity) error
	ListActivity(ctx context.Context, userID string, limit int) ([]domain.Activity, error)
	SaveFeedInteraction(ctx context.Context, fi *domain.FeedInteraction) error
	ListFeedInteractions(ctx context.Context, userID string, limit, offset int) ([]domain.FeedInteraction, int, error)
}

// TokenSigner issues an auth token for a user. Satisfied by auth.JWT.
type TokenSigner interface {
	Sign(u *domain.User) (string, error)
}

// Users wires the account workflows to the store and token signer.
type Users struct {
	store  UserStore
	signer TokenSigner
	now    func() time.Time
}

func NewUsers(st UserStore, signer TokenSigner) *Users {
	return &Users{store: st, signer: signer, now: time.Now}
}

// Register creates a new ACTIVE account with a bcrypt password hash.
func (s *Users) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("service: email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	logging.Op().Info("user registered", "user_id", u.ID, "email", u.Email)
	return u, nil
}

// LoginResult is what a successful login returns: the user, a signed
// token, and any credits awarded by the login scheme.
type LoginResult struct {
	User          *domain.User
	Token         string
	CreditsAdded  int
	CreditReasons []string
}

// Login verifies credentials, applies login credits, and issues a token.
func (s *Users) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.Status == domain.StatusArchived {
		return nil, ErrAccountArchived
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	u, added, reasons, err := s.trackLogin(ctx, u)
	if err != nil {
		return nil, err
	}

	token, err := s.signer.Sign(u)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	logging.Op().Info("user logged in", "user_id", u.ID, "credits_added", added)
	return &LoginResult{User: u, Token: token, CreditsAdded: added, CreditReasons: reasons}, nil
}

// Profile returns the user for the given ID.
func (s *Users) Profile(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateProfile applies a partial edit and logs the activity.
func (s *Users) UpdateProfile(ctx context.Context, id string, upd *domain.ProfileUpdate) (*domain.User, error) {
	u, err := s.store.UpdateProfile(ctx, id, upd)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	s.logActivity(ctx, u.ID, domain.ActionProfileUpdate, "")
	return u, nil
}

// TrackLogin applies the login credit scheme for an already
// authenticated user and reports what was awarded.
func (s *Users) TrackLogin(ctx context.Context, id string) (*domain.User, int, []string, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, 0, nil, ErrUserNotFound
	}
	if err != nil {
		return nil, 0, nil, err
	}
	return s.trackLogin(ctx, u)
}

// trackLogin awards the daily login credit at most once per UTC
// calendar day and the one-time profile completion bonus.
func (s *Users) trackLogin(ctx context.Context, u *domain.User) (*domain.User, int, []string, error) {
	now := s.now().UTC()

	delta := 0
	reasons := []string{}
	if u.LastLoginAt == nil || !sameUTCDay(*u.LastLoginAt, now) {
		delta += DailyLoginCredits
		reasons = append(reasons, "daily_login")
	}
	markBonus := false
	if u.ProfileCompleted && !u.ProfileBonusGiven {
		delta += ProfileBonusCredits
		reasons = append(reasons, "profile_completion")
		markBonus = true
	}

	updated, err := s.store.ApplyLoginCredits(ctx, u.ID, now, delta, markBonus)
	if err != nil {
		return nil, 0, nil, err
	}

	s.logActivity(ctx, u.ID, domain.ActionLogin, "")
	return updated, delta, reasons, nil
}

// AddCredits grants the manual top-up amount and returns the new total.
func (s *Users) AddCredits(ctx context.Context, id string) (int, error) {
	credits, err := s.store.AddCredits(ctx, id, ManualTopUpCredits)
	if errors.Is(err, store.ErrUserNotFound) {
		return 0, ErrUserNotFound
	}
	return credits, err
}

// SaveInteraction records a user acting on a feed item and logs the
// matching activity entry.
func (s *Users) SaveInteraction(ctx context.Context, userID string, typ domain.InteractionType, data []byte) (*domain.FeedInteraction, error) {
	fi := &domain.FeedInteraction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Data:      data,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveFeedInteraction(ctx, fi); err != nil {
		return nil, err
	}

	var action domain.ActivityAction
	switch typ {
	case domain.InteractionSave:
		action = domain.ActionSavedFeed
	case domain.InteractionShare:
		action = domain.ActionSharedFeed
	case domain.InteractionReport:
		action = domain.ActionReportedFeed
	}
	if action != "" {
		s.logActivity(ctx, userID, action, fi.ID)
	}
	return fi, nil
}

// ListActivity returns a user's most recent activity entries.
func (s *Users) ListActivity(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	return s.store.ListActivity(ctx, userID, limit)
}

// ListInteractions returns one page of a user's interactions plus the
// total count.
func (s *Users) ListInteractions(ctx context.Context, userID string, limit, offset int) ([]domain.FeedInteraction, int, error) {
	return s.store.ListFeedInteractions(ctx, userID, limit, offset)
}

// logActivity is best-effort: a failed activity write never fails the
// operation that triggered it.
func (s *Users) logActivity(ctx context.Context, userID string, action domain.ActivityAction, ref string) {
	a := &domain.Activity{
		ID:          uuid.NewString(),
		UserID:      userID,
		Action:      action,
		ReferenceID: ref,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.SaveActivity(ctx, a); err != nil {
		logging.Op().Warn("activity log write failed", "user_id", userID, "action", action, "error", err)
	}
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
