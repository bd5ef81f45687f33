package products

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unimart/unimart/internal/countcache"
	"github.com/unimart/unimart/internal/domain"
	svcerr "github.com/unimart/unimart/internal/errors"
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/internal/metrics"
	"github.com/unimart/unimart/internal/store"
	"github.com/unimart/unimart/supabase/client"
)

// fakeBackend simulates the backend surface product operations touch.
type fakeBackend struct {
	count          int
	countCalls     int
	insertCalls    int
	uploadCalls    int
	failUpload     bool
	deleteCalls    int
	insertedRow    map[string]any
	imageBackfill  map[string]any
	categoryRows   []map[string]any
	categoryCalls  int
	product        map[string]any
}

func (f *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/rest/v1/rpc/get_user_product_count":
			f.countCalls++
			_ = json.NewEncoder(w).Encode(f.count)

		case r.URL.Path == "/rest/v1/profiles":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "u1", "name": "Asha", "email": "asha@sst.scaler.com",
				"phone_number": "9876543210", "room_number": "B-214",
			})

		case r.URL.Path == "/rest/v1/products" && r.Method == http.MethodPost:
			f.insertCalls++
			var payload map[string]any
			_ = json.NewDecoder(r.Body).Decode(&payload)
			f.insertedRow = payload
			payload["id"] = "p-new"
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(payload)

		case r.URL.Path == "/rest/v1/products" && r.Method == http.MethodPatch:
			var payload map[string]any
			_ = json.NewDecoder(r.Body).Decode(&payload)
			f.imageBackfill = payload
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "p-new", "image_url": payload["image_url"]})

		case r.URL.Path == "/rest/v1/products" && r.Method == http.MethodGet:
			if r.URL.Query().Get("category") != "" {
				f.categoryCalls++
				_ = json.NewEncoder(w).Encode(f.categoryRows)
				return
			}
			if f.product == nil {
				w.WriteHeader(http.StatusNotAcceptable)
				_, _ = w.Write([]byte(`{"code":"PGRST116","message":"no rows"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(f.product)

		case strings.HasPrefix(r.URL.Path, "/storage/v1/object/product-images/"):
			f.uploadCalls++
			if f.failUpload {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"message":"storage unavailable"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"Key": "ok"})

		case r.URL.Path == "/rest/v1/rpc/delete_product_with_cleanup":
			f.deleteCalls++
			_ = json.NewEncoder(w).Encode(true)

		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"unexpected call: ` + r.Method + " " + r.URL.Path + `"}`))
		}
	}
}

func newTestService(t *testing.T, backend *fakeBackend) *Service {
	t.Helper()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	c, err := client.New(client.Config{URL: server.URL, APIKey: "key", HTTPClient: server.Client()})
	require.NoError(t, err)

	logger := logging.New("test")
	st := store.New(c, "product-images", logger)
	counts := countcache.New(st.Products.CountForUser)
	m := metrics.New(prometheus.NewRegistry())
	return New(st, counts, m, logger)
}

func validInput() domain.NewProductInput {
	return domain.NewProductInput{
		Name:         "Scientific Calculator",
		Description:  "Barely used",
		MarketPrice:  1200,
		SellingPrice: 800,
		Category:     "Electronics",
	}
}

func TestCreateRejectsInvalidInputWithoutBackendCall(t *testing.T) {
	backend := &fakeBackend{}
	svc := newTestService(t, backend)

	in := validInput()
	in.SellingPrice = 2000 // above market

	_, err := svc.Create(context.Background(), "u1", in, nil)
	assert.True(t, svcerr.Is(err, svcerr.CodeValidation))
	assert.Equal(t, 0, backend.countCalls, "validation failures must not reach the backend")
	assert.Equal(t, 0, backend.insertCalls)
}

func TestCreateBlockedAtLimit(t *testing.T) {
	backend := &fakeBackend{count: domain.MaxActiveProducts}
	svc := newTestService(t, backend)

	_, err := svc.Create(context.Background(), "u1", validInput(), nil)
	assert.True(t, svcerr.Is(err, svcerr.CodeLimitExceeded))
	assert.Equal(t, 0, backend.insertCalls)
}

func TestCreateSnapshotsSellerProfile(t *testing.T) {
	backend := &fakeBackend{count: 2}
	svc := newTestService(t, backend)

	created, err := svc.Create(context.Background(), "u1", validInput(), nil)
	require.NoError(t, err)

	assert.Equal(t, "p-new", created.ID)
	assert.Equal(t, "Asha", backend.insertedRow["seller_name"])
	assert.Equal(t, "B-214", backend.insertedRow["seller_room_number"])
	assert.Equal(t, "u1", backend.insertedRow["user_id"])
	assert.Equal(t, "asha@sst.scaler.com", created.SellerEmail)
}

func TestCreateSanitizesNameAndDescription(t *testing.T) {
	backend := &fakeBackend{count: 0}
	svc := newTestService(t, backend)

	in := validInput()
	in.Name = "Calculator <script>alert(1)</script>"

	_, err := svc.Create(context.Background(), "u1", in, nil)
	require.NoError(t, err)
	assert.NotContains(t, backend.insertedRow["name"], "<script>")
}

func TestCreateWithImageBackfillsURL(t *testing.T) {
	backend := &fakeBackend{count: 0}
	svc := newTestService(t, backend)

	created, err := svc.Create(context.Background(), "u1", validInput(), &ImageUpload{
		Data:        []byte("fake-jpeg-bytes"),
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, backend.uploadCalls)
	require.NotNil(t, backend.imageBackfill)
	assert.Contains(t, backend.imageBackfill["image_url"], "u1/p-new.jpg")
	assert.Contains(t, created.ImageURL, "u1/p-new.jpg")
}

func TestCreateKeepsProductWhenImageUploadFails(t *testing.T) {
	backend := &fakeBackend{count: 0, failUpload: true}
	svc := newTestService(t, backend)

	created, err := svc.Create(context.Background(), "u1", validInput(), &ImageUpload{
		Data:        []byte("fake-jpeg-bytes"),
		ContentType: "image/jpeg",
	})
	require.NoError(t, err, "image failure must not fail the listing")

	assert.Equal(t, 1, backend.insertCalls)
	assert.Empty(t, created.ImageURL)
	assert.Nil(t, backend.imageBackfill)
}

func TestCreateRejectsUnsupportedImageType(t *testing.T) {
	backend := &fakeBackend{count: 0}
	svc := newTestService(t, backend)

	_, err := svc.Create(context.Background(), "u1", validInput(), &ImageUpload{
		Data:        []byte("GIF89a"),
		ContentType: "image/gif",
	})
	assert.True(t, svcerr.Is(err, svcerr.CodeValidation))
	assert.Equal(t, 0, backend.insertCalls)
}

func TestCreateInvalidatesCountCache(t *testing.T) {
	backend := &fakeBackend{count: 0}
	svc := newTestService(t, backend)

	_, err := svc.Count(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 1, backend.countCalls)

	_, err = svc.Create(context.Background(), "u1", validInput(), nil)
	require.NoError(t, err)

	backend.count = 1
	count, err := svc.Count(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "count read after create must reflect the new listing")
}

func TestDeleteRequiresOwnership(t *testing.T) {
	backend := &fakeBackend{
		product: map[string]any{"id": "p1", "user_id": "someone-else"},
	}
	svc := newTestService(t, backend)

	err := svc.Delete(context.Background(), "u1", "p1")
	assert.True(t, svcerr.Is(err, svcerr.CodeForbidden))
	assert.Equal(t, 0, backend.deleteCalls)
}

func TestDeleteOwnProduct(t *testing.T) {
	backend := &fakeBackend{
		product: map[string]any{"id": "p1", "user_id": "u1"},
	}
	svc := newTestService(t, backend)

	err := svc.Delete(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.deleteCalls)
}
