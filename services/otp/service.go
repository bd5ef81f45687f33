// Package otp implements phone number verification. Codes live in Redis
// under the normalized number with a hard TTL, are single use, and a
// successful verification exchanges the code for a sign-in link.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	svcerr "github.com/unimart/unimart/internal/errors"
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/internal/metrics"
	"github.com/unimart/unimart/internal/store"
	"github.com/unimart/unimart/supabase/client"
)

const (
	// codeTTL is the code's lifetime; expiry is enforced by Redis.
	codeTTL = 5 * time.Minute
	// keyPrefix namespaces OTP keys in Redis.
	keyPrefix = "otp:"
	// countryCode is prepended to the normalized ten digits.
	countryCode = "+91"
)

// mobilePattern accepts Indian mobile numbers: ten digits starting 6-9.
var (
	mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	nonDigits     = regexp.MustCompile(`[^0-9]`)
)

// consumeScript deletes the stored code only if it still matches, so two
// concurrent verifications cannot both succeed on one code.
var consumeScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// Service sends and verifies phone OTP codes.
type Service struct {
	redis   *redis.Client
	sender  Sender
	auth    *client.AuthClient
	store   *store.Store
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// New creates the OTP service.
func New(rdb *redis.Client, sender Sender, authClient *client.AuthClient, st *store.Store, m *metrics.Metrics, logger *logging.Logger) *Service {
	return &Service{
		redis:   rdb,
		sender:  sender,
		auth:    authClient,
		store:   st,
		metrics: m,
		logger:  logger,
	}
}

// NormalizePhone reduces any phone input to its last ten digits and
// validates the mobile pattern. "+91 98765-43210", "09876543210" and
// "9876543210" all normalize to the same number.
func NormalizePhone(input string) (string, error) {
	digits := nonDigits.ReplaceAllString(input, "")
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	if !mobilePattern.MatchString(digits) {
		return "", svcerr.Validation("Please enter a valid 10-digit mobile number", nil)
	}
	return digits, nil
}

func key(digits string) string {
	return keyPrefix + countryCode + digits
}

// Send generates a six-digit code for the phone number and dispatches it
// by SMS. The number must belong to a registered profile; lookup matches
// on the stored number's suffix so formatting differences don't matter.
func (s *Service) Send(ctx context.Context, phone string) error {
	digits, err := NormalizePhone(phone)
	if err != nil {
		return err
	}

	profiles, err := s.store.Profiles.FindByPhoneSuffix(ctx, digits)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return svcerr.NotFound("No account found with this phone number")
	}

	code, err := generateCode()
	if err != nil {
		return svcerr.Internal("code generation failed", err)
	}

	if err := s.redis.Set(ctx, key(digits), code, codeTTL).Err(); err != nil {
		return svcerr.Unavailable("verification service unavailable", err)
	}

	if err := s.sender.Send(ctx, countryCode+digits, code); err != nil {
		// The code would be undeliverable; remove it so the number is not
		// left with a phantom pending verification.
		s.redis.Del(ctx, key(digits))
		return err
	}

	s.metrics.RecordOTPSent()
	s.logger.WithContext(ctx).WithField("phone_suffix", digits[6:]).Info("otp sent")
	return nil
}

// VerifyResult carries the session hand-off after a verified code.
type VerifyResult struct {
	Email      string `json:"email"`
	ActionLink string `json:"action_link"`
}

// Verify checks the submitted code. A mistyped code leaves the stored
// code in place so the user can retry within the TTL; the code is deleted
// only when it matches, and exactly one matching verification can consume
// it. Success returns a sign-in link for the profile's email.
func (s *Service) Verify(ctx context.Context, phone, code string) (*VerifyResult, error) {
	digits, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	stored, err := s.redis.Get(ctx, key(digits)).Result()
	if err == redis.Nil {
		s.metrics.RecordOTPVerifyFailed()
		return nil, svcerr.Validation("Code expired or not requested. Please request a new code.", nil)
	}
	if err != nil {
		return nil, svcerr.Unavailable("verification service unavailable", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) != 1 {
		s.metrics.RecordOTPVerifyFailed()
		s.logger.LogSecurityEvent(ctx, "otp_verify_failed", map[string]interface{}{
			"phone_suffix": digits[6:],
		})
		return nil, svcerr.Validation("Incorrect verification code. Please try again.", nil)
	}

	consumed, err := consumeScript.Run(ctx, s.redis, []string{key(digits)}, stored).Int()
	if err != nil {
		return nil, svcerr.Unavailable("verification service unavailable", err)
	}
	if consumed == 0 {
		// A concurrent verification got there first.
		s.metrics.RecordOTPVerifyFailed()
		return nil, svcerr.Validation("Code expired or not requested. Please request a new code.", nil)
	}

	return s.issueSession(ctx, digits)
}

func (s *Service) issueSession(ctx context.Context, digits string) (*VerifyResult, error) {
	profiles, err := s.store.Profiles.FindByPhoneSuffix(ctx, digits)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 || profiles[0].Email == "" {
		return nil, svcerr.NotFound("No account found with this phone number")
	}
	email := profiles[0].Email

	link, err := s.auth.GenerateMagicLink(ctx, email)
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithField("phone_suffix", digits[6:]).Info("phone verified")
	return &VerifyResult{
		Email:      email,
		ActionLink: link.ActionLink,
	}, nil
}

// generateCode returns a uniformly random six-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
