package manifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"

	"adte.com/adte/creative-agent/internal/asset"
	"adte.com/adte/creative-agent/internal/format"
)

type Options struct {
	Asset asset.Options
}

// Validate checks m against the asset slots of f and returns every problem
// found. Missing required assets come first in slot order, followed by
// per-asset failures in manifest order. An empty result means the manifest
// is valid.
func Validate(ctx context.Context, m *Manifest, f *format.CreativeFormat, opts Options) []ValidationError {
	var errs []ValidationError

	for _, req := range f.AssetsRequired {
		if !req.Required {
			continue
		}
		if _, ok := m.Asset(req.AssetID); ok {
			continue
		}
		errs = append(errs, ValidationError{
			Path:    assetPath(req.AssetID),
			Type:    ErrMissingAsset,
			Message: fmt.Sprintf("Missing required %s asset: '%s'", req.AssetType, req.AssetID),
			Hint:    requirementHint(req),
			Example: ExampleAsset(req),
		})
	}

	for _, entry := range m.Assets {
		errs = append(errs, validateEntry(ctx, entry, f, opts)...)
	}
	return errs
}

func validateEntry(ctx context.Context, entry Entry, f *format.CreativeFormat, opts Options) []ValidationError {
	if entry.ValueType != jsonparser.Object {
		return []ValidationError{{
			Path:    assetPath(entry.ID),
			Type:    ErrInvalidAsset,
			Message: fmt.Sprintf("Asset '%s': Asset must be an object", entry.ID),
		}}
	}

	a, decodeErr := asset.Decode(entry.Raw)
	if decodeErr != nil {
		return []ValidationError{fromAssetError(entry.ID, decodeErr)}
	}

	var errs []ValidationError
	if req, ok := f.Requirement(entry.ID); ok && req.AssetType != a.Kind() {
		errs = append(errs, ValidationError{
			Path:    assetPath(entry.ID, "asset_type"),
			Type:    ErrInvalidType,
			Message: fmt.Sprintf("Asset '%s': expected asset_type '%s', got '%s'", entry.ID, req.AssetType, a.Kind()),
			Hint:    requirementHint(req),
			Example: ExampleAsset(req),
		})
	}
	for _, aerr := range asset.Validate(ctx, a, opts.Asset) {
		errs = append(errs, fromAssetError(entry.ID, aerr))
	}
	return errs
}

func fromAssetError(assetID string, aerr *asset.Error) ValidationError {
	return ValidationError{
		Path:    assetPath(assetID, aerr.Field),
		Type:    ErrorType(aerr.Type),
		Message: fmt.Sprintf("Asset '%s': %s", assetID, aerr.Message),
	}
}

// MatchFormat reports a mismatch between the format named inside the manifest
// and the format it is checked against. A manifest without format_id matches.
func MatchFormat(m *Manifest, f *format.CreativeFormat) *ValidationError {
	if m.FormatID == "" {
		return nil
	}
	sameAgent := m.FormatAgentURL == "" ||
		strings.TrimRight(m.FormatAgentURL, "/") == strings.TrimRight(f.FormatID.AgentURL, "/")
	if m.FormatID == f.FormatID.ID && sameAgent {
		return nil
	}
	return &ValidationError{
		Path:    "/format_id",
		Type:    ErrFormatIDMismatch,
		Message: fmt.Sprintf("Manifest format_id '%s' does not match requested format '%s'", m.FormatID, f.FormatID.ID),
		Hint:    "Set the manifest format_id to the format being previewed or omit it",
	}
}

func requirementHint(req format.AssetRequirement) string {
	hint := fmt.Sprintf("Add an asset '%s' with asset_type '%s'", req.AssetID, req.AssetType)
	r := req.Requirements
	if r == nil {
		return hint
	}

	var details []string
	if r.Width != nil && r.Height != nil {
		details = append(details, fmt.Sprintf("%dx%d", *r.Width, *r.Height))
	}
	if r.DurationSeconds != nil {
		details = append(details, fmt.Sprintf("%gs", *r.DurationSeconds))
	}
	if len(r.AcceptableFormats) > 0 {
		details = append(details, "formats: "+strings.Join(r.AcceptableFormats, ", "))
	}
	if r.MaxFileSizeMB != nil {
		details = append(details, fmt.Sprintf("max %gMB", *r.MaxFileSizeMB))
	}
	if len(details) > 0 {
		hint += " (" + strings.Join(details, "; ") + ")"
	}
	if r.Description != "" {
		hint += ". " + r.Description
	}
	return hint
}

// ExampleAsset builds a minimal asset that satisfies req, seeded from its
// advisory requirements.
func ExampleAsset(req format.AssetRequirement) map[string]any {
	ex := map[string]any{"asset_type": string(req.AssetType)}
	r := req.Requirements
	if r == nil {
		r = &format.Requirements{}
	}
	firstFormat := func(fallback string) string {
		if len(r.AcceptableFormats) > 0 {
			return r.AcceptableFormats[0]
		}
		return fallback
	}

	switch req.AssetType {
	case asset.KindImage:
		ex["url"] = "https://cdn.example.com/" + req.AssetID + "." + firstFormat("png")
		if r.Width != nil {
			ex["width"] = *r.Width
		}
		if r.Height != nil {
			ex["height"] = *r.Height
		}
	case asset.KindVideo:
		ex["url"] = "https://cdn.example.com/" + req.AssetID + "." + firstFormat("mp4")
		if r.Width != nil {
			ex["width"] = *r.Width
		}
		if r.Height != nil {
			ex["height"] = *r.Height
		}
		if r.DurationSeconds != nil {
			ex["duration_seconds"] = *r.DurationSeconds
		}
	case asset.KindAudio:
		ex["url"] = "https://cdn.example.com/" + req.AssetID + "." + firstFormat("mp3")
		if r.DurationSeconds != nil {
			ex["duration_seconds"] = *r.DurationSeconds
		}
	case asset.KindText:
		ex["content"] = "Example text"
	case asset.KindHTML:
		ex["content"] = `<div class="ad">Example creative</div>`
	case asset.KindCSS:
		ex["content"] = ".ad { color: #000; }"
	case asset.KindJavaScript:
		ex["content"] = "console.log('ad loaded');"
	case asset.KindURL:
		ex["url"] = "https://www.example.com/landing"
	case asset.KindBrandManifest:
		ex["url"] = "https://www.example.com"
		ex["name"] = "Example Brand"
	case asset.KindVASTTag:
		ex["url"] = "https://ads.example.com/vast.xml"
	case asset.KindWebhook:
		ex["url"] = "https://hooks.example.com/render"
		ex["method"] = "POST"
		ex["timeout_ms"] = 500
	}
	return ex
}

// Check parses data and validates it against f. Parse failures and a format
// mismatch stop further inspection and are returned alone.
func Check(ctx context.Context, data []byte, f *format.CreativeFormat, opts Options) (*Manifest, []ValidationError) {
	m, perr := Parse(data)
	if perr != nil {
		return nil, []ValidationError{*perr}
	}
	if merr := MatchFormat(m, f); merr != nil {
		return m, []ValidationError{*merr}
	}
	return m, Validate(ctx, m, f, opts)
}
