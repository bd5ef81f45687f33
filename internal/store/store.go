// Package store is the data-access layer over the managed backend. Each
// call issues PostgREST queries or remote procedures through the Supabase
// client, logs failures, and returns normalized service errors (or a safe
// default for display-only counters) so callers never see raw backend
// error shapes.
package store

import (
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/supabase/client"
)

// Table names in the backend schema.
const (
	TableProducts      = "products"
	TableProfiles      = "profiles"
	TableNotifications = "notifications"
	TableDealsMetadata = "deals_metadata"
)

// Remote procedures the backend exposes.
const (
	rpcGetUserProductCount      = "get_user_product_count"
	rpcCompleteDeal             = "complete_deal"
	rpcDeleteProductWithCleanup = "delete_product_with_cleanup"
	rpcLogSuspiciousActivity    = "log_suspicious_activity"
	rpcGetContactInfoForDeal    = "get_contact_info_for_deal"
)

// Store bundles typed access to the backend tables and procedures.
type Store struct {
	client *client.Client
	bucket string
	logger *logging.Logger

	Products      *ProductStore
	Profiles      *ProfileStore
	Notifications *NotificationStore
	Metadata      *MetadataStore
}

// New creates a Store over the given client. bucket names the storage
// bucket holding product images.
func New(c *client.Client, bucket string, logger *logging.Logger) *Store {
	s := &Store{
		client: c,
		bucket: bucket,
		logger: logger,
	}
	s.Products = &ProductStore{store: s}
	s.Profiles = &ProfileStore{store: s}
	s.Notifications = &NotificationStore{store: s}
	s.Metadata = &MetadataStore{store: s}
	return s
}

// Client exposes the underlying Supabase client for storage access.
func (s *Store) Client() *client.Client { return s.client }

// Bucket returns the product image bucket name.
func (s *Store) Bucket() string { return s.bucket }

// Images returns a client for the product image bucket.
func (s *Store) Images() *client.BucketClient {
	return s.client.Storage().From(s.bucket)
}
