package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"adte.com/adte/creative-agent/internal/api"
	"adte.com/adte/creative-agent/internal/asset"
	"adte.com/adte/creative-agent/internal/format"
	"adte.com/adte/creative-agent/internal/generate"
	"adte.com/adte/creative-agent/internal/manifest"
	"adte.com/adte/creative-agent/internal/metrics"
	"adte.com/adte/creative-agent/internal/storage"
)

// DefaultPreviewTTL is the advertised lifetime of a preview.
const DefaultPreviewTTL = 24 * time.Hour

// Server struct holds application dependencies shared by every transport.
type Server struct {
	Registry  *format.Registry
	Store     storage.Store
	Generator generate.Generator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	AgentURL  string
	AgentName string

	// InteractiveBaseURL is where this agent serves its own preview pages.
	// interactive_url is only advertised when it is set.
	InteractiveBaseURL string

	// Images draws the pictures of generated image assets and BrandImages
	// downloads the brand pictures sent to the model. Both are optional.
	Images      generate.ImageGenerator
	BrandImages generate.ImageFetcher

	// MIMEChecker enables the remote content-type check of image URLs when set.
	MIMEChecker asset.MIMEChecker
	PreviewTTL  time.Duration

	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Server) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) manifestOptions() manifest.Options {
	return manifest.Options{Asset: asset.Options{MIMEChecker: s.MIMEChecker}}
}

// Agent describes this creative agent in list responses.
func (s *Server) Agent() api.CreativeAgent {
	name := s.AgentName
	if name == "" {
		name = format.DefaultAgentName
	}
	return api.CreativeAgent{
		AgentURL:     s.AgentURL,
		AgentName:    name,
		Capabilities: append([]string(nil), format.AgentCapabilities...),
	}
}

// ListFormats returns the catalog entries matching the request criteria.
func (s *Server) ListFormats(ctx context.Context, req api.ListCreativeFormatsRequest) (resp *api.ListCreativeFormatsResponse, err error) {
	defer func() { s.Metrics.RecordOperation("list_creative_formats", err) }()

	formats, err := s.Registry.Filter(req.Criteria())
	if err != nil {
		var cerr *format.CriteriaError
		if errors.As(err, &cerr) {
			return nil, &Error{
				Kind:    KindRequest,
				Code:    CodeInvalidCriteria,
				Message: cerr.Error(),
				Details: map[string]string{"field": cerr.Field},
			}
		}
		return nil, fmt.Errorf("filter formats: %w", err)
	}
	if formats == nil {
		formats = []*format.CreativeFormat{}
	}

	return &api.ListCreativeFormatsResponse{
		Formats:        formats,
		CreativeAgents: []api.CreativeAgent{s.Agent()},
	}, nil
}

// GetFormat looks up one format. An unknown id is a reference error.
func (s *Server) GetFormat(ctx context.Context, formatID string) (*format.CreativeFormat, error) {
	return s.resolveFormat(api.FormatRef{ID: formatID})
}

func (s *Server) resolveFormat(ref api.FormatRef) (*format.CreativeFormat, error) {
	if strings.TrimSpace(ref.ID) == "" {
		return nil, requestError(CodeInvalidRequest, "format_id is required")
	}
	f, err := s.Registry.Get(ref.ID)
	if errors.Is(err, format.ErrFormatNotFound) {
		return nil, &Error{
			Kind:    KindReference,
			Code:    CodeFormatNotFound,
			Message: fmt.Sprintf("Format %s not found", ref.ID),
			Details: []manifest.ValidationError{{
				Path:    "/format_id",
				Message: fmt.Sprintf("Unknown format_id: %s", ref.ID),
				Type:    manifest.ErrInvalidFormatID,
			}},
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve format: %w", err)
	}
	if ref.AgentURL != "" && trimSlash(ref.AgentURL) != trimSlash(f.FormatID.AgentURL) {
		return nil, &Error{
			Kind:    KindReference,
			Code:    CodeFormatNotFound,
			Message: fmt.Sprintf("Format %s is not served by agent %s", ref.ID, ref.AgentURL),
		}
	}
	return f, nil
}

func trimSlash(s string) string {
	return strings.TrimRight(s, "/")
}

// checkManifest parses raw and validates it against f. Every failure comes
// back as an *Error whose Details are the itemized validation errors.
func (s *Server) checkManifest(ctx context.Context, f *format.CreativeFormat, raw json.RawMessage) (*manifest.Manifest, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, &Error{
			Kind:    KindRequest,
			Code:    CodeInvalidManifest,
			Message: "creative_manifest is required",
			Details: []manifest.ValidationError{{
				Path:    "",
				Message: "Manifest must be a dictionary",
				Type:    manifest.ErrInvalidStructure,
			}},
		}
	}

	m, errs := manifest.Check(ctx, raw, f, s.manifestOptions())
	for _, verr := range errs {
		s.Metrics.RecordValidationError(string(verr.Type))
	}
	if len(errs) == 0 {
		return m, nil
	}
	return nil, classify(m, errs)
}

func classify(m *manifest.Manifest, errs []manifest.ValidationError) *Error {
	first := errs[0]
	switch {
	case m == nil && first.Type == manifest.ErrJSONSyntax:
		return &Error{Kind: KindRequest, Code: CodeInvalidJSON, Message: first.Message, Details: errs}
	case m == nil:
		return &Error{Kind: KindRequest, Code: CodeInvalidManifest, Message: first.Message, Details: errs}
	case len(errs) == 1 && first.Type == manifest.ErrFormatIDMismatch:
		return &Error{Kind: KindReference, Code: CodeFormatIDMismatch, Message: first.Message, Details: errs}
	default:
		return &Error{
			Kind:    KindValidation,
			Code:    CodeValidationFailed,
			Message: fmt.Sprintf("Asset validation failed with %d error(s)", len(errs)),
			Details: errs,
		}
	}
}

// ValidateManifest checks a manifest without rendering it. Per-asset problems
// are reported in the response; structural and reference problems are errors.
func (s *Server) ValidateManifest(ctx context.Context, ref api.FormatRef, raw json.RawMessage) (resp *api.ValidateCreativeResponse, err error) {
	defer func() { s.Metrics.RecordOperation("validate_creative", err) }()

	f, err := s.resolveFormat(ref)
	if err != nil {
		return nil, err
	}

	resp = &api.ValidateCreativeResponse{
		Valid:    true,
		FormatID: f.FormatID.ID,
		Errors:   []manifest.ValidationError{},
	}
	if _, err := s.checkManifest(ctx, f, raw); err != nil {
		serr := AsError(err)
		if serr.Kind != KindValidation {
			return nil, serr
		}
		resp.Valid = false
		resp.Errors = serr.Details.([]manifest.ValidationError)
	}
	return resp, nil
}
