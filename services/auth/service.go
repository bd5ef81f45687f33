// Package auth implements campus-restricted account and session
// management on top of the managed auth backend.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/unimart/unimart/internal/countcache"
	"github.com/unimart/unimart/internal/domain"
	svcerr "github.com/unimart/unimart/internal/errors"
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/internal/sanitize"
	"github.com/unimart/unimart/internal/store"
	"github.com/unimart/unimart/supabase/client"
)

// Lockout policy for repeated failed sign-ins.
const (
	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

type failureRecord struct {
	count       int
	lockedUntil time.Time
}

// Service manages accounts and sessions.
type Service struct {
	auth      *client.AuthClient
	store     *store.Store
	counts    *countcache.Cache
	broadcast *Broadcaster
	logger    *logging.Logger

	mu       sync.Mutex
	failures map[string]*failureRecord

	now func() time.Time
}

// New creates the auth service.
func New(authClient *client.AuthClient, st *store.Store, counts *countcache.Cache, logger *logging.Logger) *Service {
	return &Service{
		auth:      authClient,
		store:     st,
		counts:    counts,
		broadcast: NewBroadcaster(),
		logger:    logger,
		failures:  make(map[string]*failureRecord),
		now:       time.Now,
	}
}

// Broadcast exposes the session event broadcaster.
func (s *Service) Broadcast() *Broadcaster { return s.broadcast }

// SignUpInput carries the registration fields.
type SignUpInput struct {
	Email        string
	Password     string
	Name         string
	Phone        string
	RoomNumber   string
	AcademicYear string
}

// SignUp registers a campus account. Only campus addresses are accepted;
// the profile fields travel as signup metadata and a backend trigger
// materializes the profiles row.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*client.Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !sanitize.ValidEmail(email) {
		return nil, svcerr.Validation("Only campus email addresses are allowed", nil)
	}
	if len(in.Password) < 6 {
		return nil, svcerr.Validation("Password must be at least 6 characters", nil)
	}
	name := sanitize.Name(in.Name)
	if name == "" {
		return nil, svcerr.Validation("Name is required", nil)
	}

	session, err := s.auth.SignUp(ctx, email, in.Password, client.SignUpMetadata{
		Name:         name,
		Phone:        sanitize.Numeric(in.Phone),
		RoomNumber:   sanitize.Text(in.RoomNumber),
		AcademicYear: sanitize.Text(in.AcademicYear),
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithField("email", email).Info("account created")
	if session.User != nil {
		s.broadcast.Publish(SessionEvent{Type: EventSignedIn, UserID: session.User.ID})
	}
	return session, nil
}

// SignIn authenticates a campus account. After maxFailedAttempts
// consecutive failures the account is locked out for lockoutDuration;
// a successful sign-in clears the failure record.
func (s *Service) SignIn(ctx context.Context, email, password string) (*client.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !sanitize.ValidEmail(email) {
		return nil, svcerr.Validation("Only campus email addresses are allowed", nil)
	}

	if err := s.checkLockout(ctx, email); err != nil {
		return nil, err
	}

	session, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		s.recordFailure(ctx, email)
		return nil, err
	}

	s.clearFailures(email)
	if session.User != nil {
		s.broadcast.Publish(SessionEvent{Type: EventSignedIn, UserID: session.User.ID})
	}
	return session, nil
}

// SignOut revokes the session and drops per-user client state: cached
// counts go away so the next session starts from the backend's truth.
func (s *Service) SignOut(ctx context.Context, accessToken, userID string) error {
	if err := s.auth.SignOut(ctx, accessToken); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("remote sign-out failed, clearing local state anyway")
	}

	s.counts.Reset()
	s.broadcast.Publish(SessionEvent{Type: EventSignedOut, UserID: userID})
	return nil
}

// GetProfile returns the caller's profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.store.Profiles.Get(ctx, userID)
}

// UpdateProfileInput carries the editable profile fields; nil means
// leave unchanged.
type UpdateProfileInput struct {
	Name         *string `json:"name"`
	PhoneNumber  *string `json:"phone_number"`
	RoomNumber   *string `json:"room_number"`
	AcademicYear *string `json:"academic_year"`
	UPIID        *string `json:"upi_id"`
}

// UpdateProfile applies a partial update to the caller's profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*domain.Profile, error) {
	fields := make(map[string]any)
	if in.Name != nil {
		name := sanitize.Name(*in.Name)
		if name == "" {
			return nil, svcerr.Validation("Name cannot be empty", nil)
		}
		fields["name"] = name
	}
	if in.PhoneNumber != nil {
		fields["phone_number"] = sanitize.Numeric(*in.PhoneNumber)
	}
	if in.RoomNumber != nil {
		fields["room_number"] = sanitize.Text(*in.RoomNumber)
	}
	if in.AcademicYear != nil {
		fields["academic_year"] = sanitize.Text(*in.AcademicYear)
	}
	if in.UPIID != nil {
		fields["upi_id"] = sanitize.Text(*in.UPIID)
	}
	if len(fields) == 0 {
		return nil, svcerr.Validation("No fields to update", nil)
	}

	return s.store.Profiles.Update(ctx, userID, fields)
}

func (s *Service) checkLockout(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.failures[email]
	if !ok {
		return nil
	}
	if s.now().Before(rec.lockedUntil) {
		s.logger.LogSecurityEvent(ctx, "sign_in_lockout", map[string]interface{}{
			"email": email,
		})
		return svcerr.RateLimitExceeded(maxFailedAttempts, lockoutDuration.String())
	}
	if !rec.lockedUntil.IsZero() && !s.now().Before(rec.lockedUntil) {
		// Lockout expired; start a fresh window.
		delete(s.failures, email)
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.failures[email]
	if !ok {
		rec = &failureRecord{}
		s.failures[email] = rec
	}
	rec.count++
	if rec.count >= maxFailedAttempts {
		rec.lockedUntil = s.now().Add(lockoutDuration)
		s.logger.LogSecurityEvent(ctx, "sign_in_locked", map[string]interface{}{
			"email":    email,
			"failures": rec.count,
		})
	}
}

func (s *Service) clearFailures(email string) {
	s.mu.Lock()
	delete(s.failures, email)
	s.mu.Unlock()
}
