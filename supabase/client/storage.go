package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	svcerr "github.com/unimart/unimart/internal/errors"
)

// Storage returns a storage client.
func (c *Client) Storage() *StorageClient {
	return &StorageClient{client: c}
}

// StorageClient handles object storage operations.
type StorageClient struct {
	client *Client
}

// From returns a bucket client.
func (s *StorageClient) From(bucket string) *BucketClient {
	return &BucketClient{
		client: s.client,
		bucket: bucket,
	}
}

// BucketClient handles bucket operations.
type BucketClient struct {
	client *Client
	bucket string
}

// UploadOptions control upload behavior.
type UploadOptions struct {
	ContentType  string
	Upsert       bool
	CacheControl string
}

// Upload stores data under path, e.g. "{user_id}/{product_id}.jpg".
func (b *BucketClient) Upload(ctx context.Context, path string, data []byte, opts UploadOptions) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.client.baseURL, b.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	b.client.setHeaders(req, "")
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	if opts.Upsert {
		req.Header.Set("x-upsert", "true")
	}
	if opts.CacheControl != "" {
		req.Header.Set("Cache-Control", "max-age="+opts.CacheControl)
	}

	_, err = b.client.do(req)
	return err
}

// Download retrieves the object at path.
func (b *BucketClient) Download(ctx context.Context, path string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.client.baseURL, b.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	b.client.setHeaders(req, "")

	return b.client.do(req)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	UpdatedAt string `json:"updated_at"`
	CreatedAt string `json:"created_at"`
}

// List lists objects under prefix.
func (b *BucketClient) List(ctx context.Context, prefix string, limit, offset int) ([]ObjectInfo, error) {
	reqURL := fmt.Sprintf("%s/storage/v1/object/list/%s", b.client.baseURL, b.bucket)

	payload := map[string]any{
		"prefix": prefix,
		"limit":  limit,
		"offset": offset,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	b.client.setHeaders(req, "")
	req.Header.Set("Content-Type", "application/json")

	body, err := b.client.do(req)
	if err != nil {
		return nil, err
	}

	var objects []ObjectInfo
	if err := json.Unmarshal(body, &objects); err != nil {
		return nil, svcerr.Internal("decode list response", err)
	}
	return objects, nil
}

// Remove deletes the objects at the given paths.
func (b *BucketClient) Remove(ctx context.Context, paths []string) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s", b.client.baseURL, b.bucket)

	encoded, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	b.client.setHeaders(req, "")
	req.Header.Set("Content-Type", "application/json")

	_, err = b.client.do(req)
	return err
}

// PublicURL returns the public URL for the object at path.
func (b *BucketClient) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.client.baseURL, b.bucket, path)
}

// PathFromPublicURL extracts the object path from a public URL produced by
// PublicURL. Returns empty if the URL does not reference this bucket.
func (b *BucketClient) PathFromPublicURL(publicURL string) string {
	marker := "/" + b.bucket + "/"
	idx := strings.Index(publicURL, marker)
	if idx < 0 {
		return ""
	}
	return publicURL[idx+len(marker):]
}
