package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/feedgate/feedgate/internal/domain"
	"github.com/feedgate/feedgate/internal/store"
)

// fakeStore is an in-memory UserStore for exercising the workflows
// without Postgres.
type fakeStore struct {
	users        map[string]*domain.User // by ID
	byEmail      map[string]string
	activities   []domain.Activity
	interactions []domain.FeedInteraction
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]*domain.User{},
		byEmail: map[string]string{},
	}
}

func (f *fakeStore) CreateUser(_ context.Context, u *domain.User) error {
	if _, ok := f.byEmail[u.Email]; ok {
		return store.ErrDuplicateEmail
	}
	cp := *u
	f.users[u.ID] = &cp
	f.byEmail[u.Email] = u.ID
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	id, ok := f.byEmail[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *f.users[id]
	return &cp, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, id string, upd *domain.ProfileUpdate) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Profile != nil {
		u.Profile = *upd.Profile
	}
	if upd.ProfileCompleted != nil {
		u.ProfileCompleted = *upd.ProfileCompleted
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) AddCredits(_ context.Context, id string, delta int) (int, error) {
	u, ok := f.users[id]
	if !ok {
		return 0, store.ErrUserNotFound
	}
	u.Credits += delta
	return u.Credits, nil
}

func (f *fakeStore) ApplyLoginCredits(_ context.Context, id string, loginAt time.Time, delta int, markBonusGiven bool) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	t := loginAt
	u.LastLoginAt = &t
	u.Credits += delta
	if markBonusGiven {
		u.ProfileBonusGiven = true
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) SaveActivity(_ context.Context, a *domain.Activity) error {
	f.activities = append(f.activities, *a)
	return nil
}

func (f *fakeStore) ListActivity(_ context.Context, userID string, limit int) ([]domain.Activity, error) {
	var out []domain.Activity
	for _, a := range f.activities {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) SaveFeedInteraction(_ context.Context, fi *domain.FeedInteraction) error {
	f.interactions = append(f.interactions, *fi)
	return nil
}

func (f *fakeStore) ListFeedInteractions(_ context.Context, userID string, limit, offset int) ([]domain.FeedInteraction, int, error) {
	var all []domain.FeedInteraction
	for _, fi := range f.interactions {
		if fi.UserID == userID {
			all = append(all, fi)
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

type fakeSigner struct{}

func (fakeSigner) Sign(u *domain.User) (string, error) { return "token-" + u.ID, nil }

func newTestUsers(t *testing.T) (*Users, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	return NewUsers(fs, fakeSigner{}), fs
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestUsers(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Status != domain.StatusActive || u.Role != domain.RoleUser {
		t.Fatalf("unexpected new user state: %+v", u)
	}
	if u.PasswordHash == "hunter22" || u.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}

	res, err := svc.Login(ctx, "ada@example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token != "token-"+u.ID {
		t.Fatalf("token = %q", res.Token)
	}
	if res.CreditsAdded != DailyLoginCredits {
		t.Fatalf("credits added = %d, want %d", res.CreditsAdded, DailyLoginCredits)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestUsers(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ada", "ada@example.com", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, "Eve", "ada@example.com", "pw2")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestUsers(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Ada", "ada@example.com", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "pw"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestLoginArchivedAccount(t *testing.T) {
	svc, fs := newTestUsers(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ada", "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	fs.users[u.ID].Status = domain.StatusArchived

	if _, err := svc.Login(ctx, "ada@example.com", "pw"); !errors.Is(err, ErrAccountArchived) {
		t.Fatalf("err = %v, want ErrAccountArchived", err)
	}
}

func TestDailyLoginCreditOncePerDay(t *testing.T) {
	svc, _ := newTestUsers(t)
	ctx := context.Background()

	day1 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day1 }

	u, err := svc.Register(ctx, "Ada", "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, added, reasons, err := svc.TrackLogin(ctx, u.ID)
	if err != nil {
		t.Fatalf("track login: %v", err)
	}
	if added != DailyLoginCredits || len(reasons) != 1 || reasons[0] != "daily_login" {
		t.Fatalf("first login: added=%d reasons=%v", added, reasons)
	}

	// Same calendar day, later hour: no further award.
	svc.now = func() time.Time { return day1.Add(8 * time.Hour) }
	_, added, reasons, err = svc.TrackLogin(ctx, u.ID)
	if err != nil {
		t.Fatalf("track login: %v", err)
	}
	if added != 0 || len(reasons) != 0 {
		t.Fatalf("same-day login: added=%d reasons=%v", added, reasons)
	}

	// Crossing midnight UTC resets the award.
	svc.now = func() time.Time { return day1.Add(24 * time.Hour) }
	updated, added, _, err := svc.TrackLogin(ctx, u.ID)
	if err != nil {
		t.Fatalf("track login: %v", err)
	}
	if added != DailyLoginCredits {
		t.Fatalf("next-day login: added=%d", added)
	}
	if updated.Credits != 2*DailyLoginCredits {
		t.Fatalf("credits = %d, want %d", updated.Credits, 2*DailyLoginCredits)
	}
}

func TestProfileCompletionBonusOnce(t *testing.T) {
	svc, fs := newTestUsers(t)
	ctx := context.Background()

	day1 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day1 }

	u, err := svc.Register(ctx, "Ada", "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	fs.users[u.ID].ProfileCompleted = true

	_, added, reasons, err := svc.TrackLogin(ctx, u.ID)
	if err != nil {
		t.Fatalf("track login: %v", err)
	}
	if added != DailyLoginCredits+ProfileBonusCredits {
		t.Fatalf("added = %d, want %d", added, DailyLoginCredits+ProfileBonusCredits)
	}
	if len(reasons) != 2 {
		t.Fatalf("reasons = %v", reasons)
	}

	// Bonus is one-time even across days.
	svc.now = func() time.Time { return day1.Add(24 * time.Hour) }
	_, added, reasons, err = svc.TrackLogin(ctx, u.ID)
	if err != nil {
		t.Fatalf("track login: %v", err)
	}
	if added != DailyLoginCredits || len(reasons) != 1 {
		t.Fatalf("second day: added=%d reasons=%v", added, reasons)
	}
}

func TestAddCredits(t *testing.T) {
	svc, _ := newTestUsers(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ada", "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	total, err := svc.AddCredits(ctx, u.ID)
	if err != nil {
		t.Fatalf("add credits: %v", err)
	}
	if total != ManualTopUpCredits {
		t.Fatalf("total = %d, want %d", total, ManualTopUpCredits)
	}
	if _, err := svc.AddCredits(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestSaveInteractionLogsActivity(t *testing.T) {
	svc, fs := newTestUsers(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ada", "ada@example.com", "pw")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	fi, err := svc.SaveInteraction(ctx, u.ID, domain.InteractionSave, []byte(`{"id":"p1"}`))
	if err != nil {
		t.Fatalf("save interaction: %v", err)
	}
	if fi.ID == "" || fi.UserID != u.ID {
		t.Fatalf("interaction = %+v", fi)
	}

	var found bool
	for _, a := range fs.activities {
		if a.Action == domain.ActionSavedFeed && a.ReferenceID == fi.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("saved_feed activity not recorded")
	}

	items, total, err := svc.ListInteractions(ctx, u.ID, 10, 0)
	if err != nil {
		t.Fatalf("list interactions: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("total=%d len=%d", total, len(items))
	}
}
