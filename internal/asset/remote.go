package asset

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"adte.com/adte/creative-agent/internal/security"
)

// HTTPMIMEChecker issues a HEAD request and expects an image/* content type.
// Guard vets the target before any request is sent.
type HTTPMIMEChecker struct {
	Client  *http.Client
	Timeout time.Duration
	Guard   func(ctx context.Context, rawURL string) error
}

func NewHTTPMIMEChecker() *HTTPMIMEChecker {
	return &HTTPMIMEChecker{
		Client:  &http.Client{},
		Timeout: 5 * time.Second,
		Guard: func(ctx context.Context, rawURL string) error {
			return security.CheckOutboundURL(ctx, rawURL, nil)
		},
	}
}

func (c *HTTPMIMEChecker) CheckImage(ctx context.Context, rawURL string) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if c.Guard != nil {
		if err := c.Guard(ctx, rawURL); err != nil {
			return fmt.Errorf("Image URL not allowed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("Could not build request for image URL: %w", err)
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("Could not verify image URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("Image URL returned status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}
	return nil
}
