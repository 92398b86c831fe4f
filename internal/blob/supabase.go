// Package blob stores X-ray images in Supabase Storage through its REST API.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrObjectNotFound = errors.New("object not found")

// apiError is the body Supabase Storage returns on failure.
type apiError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// SupabaseClient uploads and deletes objects in one bucket.
type SupabaseClient struct {
	http    *resty.Client
	baseURL string
	bucket  string
	logger  *zap.Logger
}

func NewSupabaseClient(baseURL, serviceKey, bucket string, logger *zap.Logger) *SupabaseClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL = strings.TrimRight(baseURL, "/")

	client := resty.New().
		SetBaseURL(baseURL+"/storage/v1").
		SetTimeout(30*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetAuthToken(serviceKey).
		SetHeader("apikey", serviceKey).
		SetHeader("Accept", "application/json")

	return &SupabaseClient{
		http:    client,
		baseURL: baseURL,
		bucket:  bucket,
		logger:  logger,
	}
}

// Upload stores data at path and returns its public URL. Existing objects are
// never overwritten.
func (c *SupabaseClient) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "false").
		SetBody(data).
		SetError(&apiErr).
		Post(c.objectPath(path))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	if resp.IsError() && resp.Request.Attempt > 1 && apiErr.duplicate(resp.StatusCode()) {
		// An earlier attempt stored the object before its response was lost.
		c.logger.Warn("object already stored by an earlier attempt",
			zap.String("path", path),
			zap.Int("attempt", resp.Request.Attempt))
		return c.PublicURL(path), nil
	}
	if resp.IsError() {
		c.logger.Error("storage upload rejected",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", apiErr.Message))
		return "", fmt.Errorf("upload %s: status %d: %s", path, resp.StatusCode(), apiErr.describe())
	}

	c.logger.Debug("object uploaded", zap.String("path", path), zap.Int("bytes", len(data)))
	return c.PublicURL(path), nil
}

// Delete removes the object at path.
func (c *SupabaseClient) Delete(ctx context.Context, path string) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&apiErr).
		Delete(c.objectPath(path))
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	if resp.StatusCode() == http.StatusNotFound || apiErr.StatusCode == "404" {
		return fmt.Errorf("delete %s: %w", path, ErrObjectNotFound)
	}
	if resp.IsError() {
		return fmt.Errorf("delete %s: status %d: %s", path, resp.StatusCode(), apiErr.describe())
	}
	return nil
}

// Ping checks that the bucket exists and the key can read it.
func (c *SupabaseClient) Ping(ctx context.Context) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&apiErr).
		Get("/bucket/" + url.PathEscape(c.bucket))
	if err != nil {
		return fmt.Errorf("storage ping: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("storage ping: status %d: %s", resp.StatusCode(), apiErr.describe())
	}
	return nil
}

// PublicURL is the unauthenticated download URL of path.
func (c *SupabaseClient) PublicURL(path string) string {
	return c.baseURL + "/storage/v1/object/public/" + url.PathEscape(c.bucket) + "/" + escapePath(path)
}

func (c *SupabaseClient) objectPath(path string) string {
	return "/object/" + url.PathEscape(c.bucket) + "/" + escapePath(path)
}

func escapePath(path string) string {
	parts := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (e apiError) duplicate(status int) bool {
	return status == http.StatusConflict || e.StatusCode == "409"
}

func (e apiError) describe() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	default:
		return "unknown error"
	}
}
