package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerr "github.com/unimart/unimart/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{
		URL:        server.URL,
		APIKey:     "test-key",
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	return c
}

func TestGetBuildsPostgRESTQuery(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	var dest []map[string]any
	err := c.From("products").
		Select("*,profiles!fk_products_user_id(email,phone_number)").
		Eq("category", "Munchies").
		Order("created_at", false).
		Range(20, 39).
		Get(context.Background(), &dest)
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/products", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "*,profiles!fk_products_user_id(email,phone_number)", q.Get("select"))
	assert.Equal(t, "eq.Munchies", q.Get("category"))
	assert.Equal(t, "created_at.desc", q.Get("order"))
	assert.Equal(t, "20-39", got.Header.Get("Range"))
	assert.Equal(t, "items", got.Header.Get("Range-Unit"))
	assert.Equal(t, "test-key", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer test-key", got.Header.Get("Authorization"))
}

func TestWithTokenOverridesAuthorization(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_, _ = w.Write([]byte(`[]`))
	})

	err := c.From("profiles").Select("*").WithToken("user-session-token").Get(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "test-key", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer user-session-token", got.Header.Get("Authorization"))
}

func TestSingleSetsObjectAccept(t *testing.T) {
	var accept string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"id":"p1"}`))
	})

	var dest struct {
		ID string `json:"id"`
	}
	err := c.From("products").Select("*").Eq("id", "p1").Single().Get(context.Background(), &dest)
	require.NoError(t, err)

	assert.Equal(t, "application/vnd.pgrst.object+json", accept)
	assert.Equal(t, "p1", dest.ID)
}

func TestMaybeSingleSwallowsNoRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`))
	})

	dest := struct {
		ID string `json:"id"`
	}{ID: "untouched"}
	err := c.From("notifications").Select("*").Eq("id", "missing").MaybeSingle().Get(context.Background(), &dest)

	require.NoError(t, err)
	assert.Equal(t, "untouched", dest.ID)
}

func TestSingleNoRowsIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"code":"PGRST116","message":"no rows"}`))
	})

	err := c.From("products").Select("*").Eq("id", "missing").Single().Get(context.Background(), nil)
	assert.True(t, svcerr.Is(err, svcerr.CodeNotFound))
}

func TestInsertSendsRepresentationPrefer(t *testing.T) {
	var got *http.Request
	var body []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"n1","status":"pending_seller_confirmation"}`))
	})

	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err := c.From("notifications").Single().Insert(context.Background(), map[string]any{
		"product_id": "p1",
	}, &created)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "return=representation", got.Header.Get("Prefer"))
	assert.JSONEq(t, `{"product_id":"p1"}`, string(body))
	assert.Equal(t, "n1", created.ID)
}

func TestUniqueViolationMapsToConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"uniq_notifications_parties\""}`))
	})

	err := c.From("notifications").Insert(context.Background(), map[string]any{}, nil)
	assert.True(t, svcerr.Is(err, svcerr.CodeConflict))
}

func TestRPCDecodesDoublyEncodedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/complete_deal", r.URL.Path)
		// Some procedures return their JSON payload as a JSON string.
		encoded, _ := json.Marshal(`{"success":true,"deal_completed":true}`)
		_, _ = w.Write(encoded)
	})

	var result struct {
		Success       bool `json:"success"`
		DealCompleted bool `json:"deal_completed"`
	}
	err := c.RPC(context.Background(), "complete_deal", map[string]string{
		"notification_id": "n1",
		"user_id":         "u1",
	}, &result)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.DealCompleted)
}

func TestRPCScalarResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`3`))
	})

	var count int
	err := c.RPC(context.Background(), "get_user_product_count", map[string]string{"user_uuid": "u1"}, &count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBackendErrorTranslation(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   svcerr.Code
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"JWT expired"}`, svcerr.CodeUnauthorized},
		{"forbidden", http.StatusForbidden, `{"message":"permission denied"}`, svcerr.CodeForbidden},
		{"validation", http.StatusBadRequest, `{"message":"invalid input"}`, svcerr.CodeValidation},
		{"rate limited", http.StatusTooManyRequests, `{}`, svcerr.CodeRateLimited},
		{"unavailable", http.StatusServiceUnavailable, `{}`, svcerr.CodeUnavailable},
		{"duplicate deal trigger", http.StatusBadRequest,
			`{"message":"You already have a pending deal for this product"}`, svcerr.CodeDuplicateDeal},
		{"product limit trigger", http.StatusBadRequest,
			`{"message":"Product limit reached"}`, svcerr.CodeLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := c.From("products").Select("*").Get(context.Background(), nil)
			assert.True(t, svcerr.Is(err, tt.code), "want %s, got %v", tt.code, err)
		})
	}
}

func TestBackendErrorHookReceivesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"JWT expired"}`))
	}))
	defer server.Close()

	var codes []string
	c, err := New(Config{
		URL:            server.URL,
		APIKey:         "test-key",
		HTTPClient:     server.Client(),
		OnBackendError: func(code string) { codes = append(codes, code) },
	})
	require.NoError(t, err)

	var dest []map[string]any
	err = c.From("products").Select("*").Get(context.Background(), &dest)
	require.Error(t, err)
	assert.Equal(t, []string{string(svcerr.CodeUnauthorized)}, codes)
}
