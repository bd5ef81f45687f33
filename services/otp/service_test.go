package otp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerr "github.com/unimart/unimart/internal/errors"
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/internal/metrics"
	"github.com/unimart/unimart/internal/store"
	"github.com/unimart/unimart/supabase/client"
)

const testPhone = "9876543210"

// fakeSender records dispatched codes and can be told to fail.
type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	codes []string
	fail  bool
}

func (f *fakeSender) Send(ctx context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return svcerr.Unavailable("sms gateway refused", errors.New("boom"))
	}
	f.sent = append(f.sent, phone)
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeSender) lastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.codes) == 0 {
		return ""
	}
	return f.codes[len(f.codes)-1]
}

// otpBackend serves the profile lookup and magic-link endpoints.
type otpBackend struct {
	profileJSON string
}

func (b *otpBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rest/v1/profiles":
			if b.profileJSON == "" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[` + b.profileJSON + `]`))
		case "/auth/v1/admin/generate_link":
			_, _ = w.Write([]byte(`{"action_link":"https://example.test/magic","email_otp":"123456"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"unexpected call"}`))
		}
	}
}

func newTestService(t *testing.T, backend *otpBackend, sender Sender) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	c, err := client.New(client.Config{URL: server.URL, APIKey: "key", HTTPClient: server.Client()})
	require.NoError(t, err)

	logger := logging.New("test")
	st := store.New(c, "product-images", logger)
	m := metrics.New(prometheus.NewRegistry())
	return New(rdb, sender, c.Auth(), st, m, logger), mr
}

func knownProfile() *otpBackend {
	return &otpBackend{
		profileJSON: `{"id":"u1","email":"asha@sst.scaler.com","phone_number":"+919876543210"}`,
	}
}

func TestSendStoresCodeWithTTL(t *testing.T) {
	sender := &fakeSender{}
	svc, mr := newTestService(t, knownProfile(), sender)

	require.NoError(t, svc.Send(context.Background(), "+91 98765-43210"))

	stored, err := mr.Get(key(testPhone))
	require.NoError(t, err)
	assert.Len(t, stored, 6)
	assert.Equal(t, stored, sender.lastCode())
	assert.Equal(t, []string{"+919876543210"}, sender.sent)
	assert.Equal(t, codeTTL, mr.TTL(key(testPhone)))
}

func TestSendUnknownPhone(t *testing.T) {
	sender := &fakeSender{}
	svc, mr := newTestService(t, &otpBackend{}, sender)

	err := svc.Send(context.Background(), testPhone)
	assert.True(t, svcerr.Is(err, svcerr.CodeNotFound))
	assert.False(t, mr.Exists(key(testPhone)))
	assert.Empty(t, sender.sent)
}

func TestSendSMSFailureRemovesCode(t *testing.T) {
	sender := &fakeSender{fail: true}
	svc, mr := newTestService(t, knownProfile(), sender)

	err := svc.Send(context.Background(), testPhone)
	require.Error(t, err)
	assert.False(t, mr.Exists(key(testPhone)), "undeliverable code must not linger")
}

func TestVerifyWrongCodeKeepsStored(t *testing.T) {
	svc, mr := newTestService(t, knownProfile(), &fakeSender{})
	require.NoError(t, mr.Set(key(testPhone), "424242"))
	mr.SetTTL(key(testPhone), codeTTL)

	_, err := svc.Verify(context.Background(), testPhone, "000000")
	assert.True(t, svcerr.Is(err, svcerr.CodeValidation))
	assert.True(t, mr.Exists(key(testPhone)), "a typo must not destroy the code")

	// The same code still works on the retry.
	result, err := svc.Verify(context.Background(), testPhone, "424242")
	require.NoError(t, err)
	assert.Equal(t, "asha@sst.scaler.com", result.Email)
	assert.Equal(t, "https://example.test/magic", result.ActionLink)
}

func TestVerifyConsumesCodeOnSuccess(t *testing.T) {
	svc, mr := newTestService(t, knownProfile(), &fakeSender{})
	require.NoError(t, mr.Set(key(testPhone), "424242"))

	_, err := svc.Verify(context.Background(), testPhone, "424242")
	require.NoError(t, err)
	assert.False(t, mr.Exists(key(testPhone)))

	_, err = svc.Verify(context.Background(), testPhone, "424242")
	assert.True(t, svcerr.Is(err, svcerr.CodeValidation))
}

func TestVerifyExpiredCode(t *testing.T) {
	svc, mr := newTestService(t, knownProfile(), &fakeSender{})
	require.NoError(t, mr.Set(key(testPhone), "424242"))
	mr.SetTTL(key(testPhone), time.Minute)
	mr.FastForward(2 * time.Minute)

	_, err := svc.Verify(context.Background(), testPhone, "424242")
	assert.True(t, svcerr.Is(err, svcerr.CodeValidation))
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare ten digits", "9876543210", "9876543210"},
		{"with country code", "+919876543210", "9876543210"},
		{"with leading zero", "09876543210", "9876543210"},
		{"formatted", "+91 98765-43210", "9876543210"},
		{"spaces and dashes", "98765 432 10", "9876543210"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhoneRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too short", "98765"},
		{"landline prefix", "1234567890"},
		{"starts below six", "5876543210"},
		{"empty", ""},
		{"letters only", "not-a-number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizePhone(tt.input)
			assert.True(t, svcerr.Is(err, svcerr.CodeValidation))
		})
	}
}

func TestNormalizePhoneVariantsCollapse(t *testing.T) {
	variants := []string{"9876543210", "+919876543210", "919876543210", "+91 98765 43210"}
	first, err := NormalizePhone(variants[0])
	require.NoError(t, err)
	for _, v := range variants[1:] {
		got, err := NormalizePhone(v)
		require.NoError(t, err)
		assert.Equal(t, first, got, "all spellings must map to one key")
	}
}

func TestGenerateCodeShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9')
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "codes must vary")
}
