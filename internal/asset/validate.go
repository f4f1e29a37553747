package asset

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type ErrorType string

const (
	ErrMissingField     ErrorType = "missing_required_field"
	ErrInvalidType      ErrorType = "invalid_type"
	ErrInvalidStructure ErrorType = "invalid_asset_structure"
)

// Error is a single asset rule failure. Field names the offending asset field
// and is empty when the failure concerns the asset as a whole.
type Error struct {
	Field   string
	Type    ErrorType
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// MaxDataURIPayload bounds the encoded payload of an inline data URI.
const MaxDataURIPayload = 10 * 1024 * 1024

var (
	htmlTagPattern = regexp.MustCompile(`<[a-z][\s\S]*?>`)
	cssRulePattern = regexp.MustCompile(`[^{}]+\{[^{}]*\}`)

	blockedSchemes = []string{"javascript:", "vbscript:", "file:", "about:"}

	dataURIMIMETypes = map[string]bool{
		"image/png":     true,
		"image/jpeg":    true,
		"image/jpg":     true,
		"image/gif":     true,
		"image/webp":    true,
		"image/svg+xml": true,
	}

	imageFormats = map[string]bool{
		"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "svg": true,
	}
)

func invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Type: ErrInvalidStructure, Message: fmt.Sprintf(format, args...)}
}

func ValidateText(content string) error {
	if strings.TrimSpace(content) == "" {
		return invalid("content", "Text content cannot be empty")
	}
	return nil
}

func ValidateHTML(content string) error {
	if strings.TrimSpace(content) == "" {
		return invalid("content", "HTML content cannot be empty")
	}
	lower := strings.ToLower(content)
	if !htmlTagPattern.MatchString(lower) {
		return invalid("content", "HTML content must contain valid HTML tags")
	}
	if (strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype html>")) &&
		!strings.Contains(lower, "<body") {
		return invalid("content", "HTML document must contain <body> tag")
	}
	return nil
}

func ValidateCSS(content string) error {
	if strings.TrimSpace(content) == "" {
		return invalid("content", "CSS content cannot be empty")
	}
	if !cssRulePattern.MatchString(content) {
		return invalid("content", "CSS content must contain at least one valid rule")
	}
	return nil
}

// ValidateJavaScript only checks that something resembling code is present.
func ValidateJavaScript(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return invalid("content", "JavaScript content cannot be empty")
	}
	if len(trimmed) < 5 {
		return invalid("content", "JavaScript content is too short to be valid")
	}
	return nil
}

// ValidateURL accepts absolute http(s) URLs and inline image data URIs.
// Script-capable and local schemes are always rejected.
func ValidateURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return invalid("url", "URL cannot be empty")
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range blockedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return invalid("url", "URL scheme not allowed: %s", strings.TrimSuffix(scheme, ":"))
		}
	}
	if strings.HasPrefix(lower, "data:") {
		return ValidateDataURI(trimmed)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return invalid("url", "URL must have scheme and host")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return invalid("url", "URL scheme must be http or https, got: %s", scheme)
	}
	return nil
}

// ValidateDataURI checks an inline image. The size limit applies to the
// encoded payload, not the decoded bytes.
func ValidateDataURI(raw string) error {
	if !strings.HasPrefix(strings.ToLower(raw), "data:") {
		return invalid("url", "Data URI must start with 'data:'")
	}
	header, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return invalid("url", "Data URI must contain comma separator")
	}
	mime, _, _ := strings.Cut(header, ";")
	mime = strings.ToLower(strings.TrimSpace(mime))
	if !dataURIMIMETypes[mime] {
		return invalid("url", "Data URI MIME type not allowed: %s", mime)
	}
	if len(payload) > MaxDataURIPayload {
		return invalid("url", "Data URI exceeds 10MB size limit")
	}
	return nil
}

// MIMEChecker confirms that a remote resource is served with an image type.
type MIMEChecker interface {
	CheckImage(ctx context.Context, rawURL string) error
}

// Options tunes Validate. The zero value performs no network access.
type Options struct {
	MIMEChecker MIMEChecker
}

// Validate runs the rules for the asset's own kind and returns every failure.
func Validate(ctx context.Context, a Asset, opts Options) []*Error {
	var errs []*Error
	add := func(err error) {
		if err == nil {
			return
		}
		if ae, ok := err.(*Error); ok {
			errs = append(errs, ae)
			return
		}
		errs = append(errs, &Error{Type: ErrInvalidStructure, Message: err.Error()})
	}

	switch v := a.(type) {
	case ImageAsset:
		add(ValidateURL(v.URL))
		if v.Width != nil && *v.Width <= 0 {
			add(invalid("width", "Image width must be a positive integer"))
		}
		if v.Height != nil && *v.Height <= 0 {
			add(invalid("height", "Image height must be a positive integer"))
		}
		if v.Format != "" && !imageFormats[strings.ToLower(v.Format)] {
			add(invalid("format", "Image format not allowed: %s", v.Format))
		}
		if len(errs) == 0 && opts.MIMEChecker != nil && !strings.HasPrefix(strings.ToLower(v.URL), "data:") {
			if err := opts.MIMEChecker.CheckImage(ctx, v.URL); err != nil {
				add(invalid("url", "%s", err.Error()))
			}
		}
	case VideoAsset:
		add(ValidateURL(v.URL))
	case AudioAsset:
		add(ValidateURL(v.URL))
	case TextAsset:
		add(ValidateText(v.Content))
	case HTMLAsset:
		add(ValidateHTML(v.Content))
	case CSSAsset:
		add(ValidateCSS(v.Content))
	case JavaScriptAsset:
		add(ValidateJavaScript(v.Content))
	case URLAsset:
		add(ValidateURL(v.URL))
	case BrandManifestAsset:
		switch {
		case v.URL != "":
			add(ValidateURL(v.URL))
		case strings.TrimSpace(v.Name) == "":
			add(&Error{Field: "name", Type: ErrMissingField, Message: "Brand manifest must have url or name"})
		}
	case VASTTagAsset:
		switch {
		case v.URL != "":
			add(ValidateURL(v.URL))
		case strings.TrimSpace(v.Content) == "":
			add(&Error{Field: "content", Type: ErrMissingField, Message: "VAST tag must have url or content"})
		case !strings.Contains(strings.ToUpper(v.Content), "<VAST"):
			add(invalid("content", "VAST tag content must contain a <VAST> element"))
		}
	case WebhookAsset:
		add(ValidateURL(v.URL))
		if v.Method != "" && v.Method != "GET" && v.Method != "POST" {
			add(invalid("method", "Webhook method must be GET or POST, got: %s", v.Method))
		}
		if v.TimeoutMS != nil && *v.TimeoutMS <= 0 {
			add(invalid("timeout_ms", "Webhook timeout_ms must be a positive integer"))
		}
	default:
		add(&Error{Field: "asset_type", Type: ErrInvalidType, Message: fmt.Sprintf("Unknown asset_type: %T", a)})
	}
	return errs
}
