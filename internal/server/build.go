package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"adte.com/adte/creative-agent/internal/api"
	"adte.com/adte/creative-agent/internal/asset"
	"adte.com/adte/creative-agent/internal/format"
	"adte.com/adte/creative-agent/internal/generate"
	"adte.com/adte/creative-agent/internal/manifest"
)

const maxMessageLength = 10000

var refinementSuggestions = []string{
	"Consider A/B testing different headlines",
	"Test various CTA button colors",
	"Try different image crops for mobile vs desktop",
}

// BuildCreative asks the generator for a manifest matching the requested
// format. Generative formats build their first output format.
func (s *Server) BuildCreative(ctx context.Context, req api.BuildCreativeRequest) (resp *api.BuildCreativeResponse, err error) {
	defer func() { s.Metrics.RecordOperation("build_creative", err) }()

	if n := utf8.RuneCountInString(req.Message); n == 0 || n > maxMessageLength {
		return nil, requestError(CodeInvalidRequest, "Message must be between 1 and %d characters", maxMessageLength)
	}
	mode := req.OutputMode
	if mode == "" {
		mode = api.OutputModeManifest
	}
	if mode != api.OutputModeManifest && mode != api.OutputModeCode {
		return nil, requestError(CodeInvalidOutputMode, "Invalid output_mode '%s'. Must be 'manifest' or 'code'", mode)
	}

	f, err := s.resolveFormat(req.FormatID)
	if err != nil {
		return nil, err
	}
	target := f
	if f.IsGenerative() {
		out := f.OutputFormatIDs[0].ID
		if target, err = s.Registry.Get(out); err != nil {
			return nil, &Error{Kind: KindReference, Code: CodeFormatNotFound, Message: fmt.Sprintf("Output format %s not found", out)}
		}
	}

	if s.Generator == nil {
		return nil, &Error{Kind: KindCollaborator, Code: CodeGenerationFailed, Message: "creative generation is not configured"}
	}

	brand := req.PromotedOfferings
	if brand == nil {
		brand = req.BrandManifest
	}
	images := s.brandImages(ctx, brand)
	withImages := s.Images != nil && target.HasAssetType(asset.KindImage)
	prompt := generate.BuildPrompt(generate.PromptInput{
		Format:         f,
		Target:         target,
		Brand:          brand,
		Message:        req.Message,
		Now:            s.now(),
		GenerateImages: withImages,
		AttachedImages: len(images),
	})

	output, err := s.Generator.Generate(ctx, generate.Request{
		SystemPrompt: generate.SystemPrompt,
		Prompt:       prompt,
		Images:       images,
		APIKey:       req.APIKey,
	})
	s.Metrics.RecordGeneration(err)
	if err != nil {
		if errors.Is(err, generate.ErrNoAPIKey) {
			return nil, requestError(CodeAPIKeyRequired,
				"gemini_api_key is required. Please provide your own Gemini API key. Get one at https://ai.google.dev/")
		}
		s.logger().Error("creative generation failed", "format_id", f.FormatID.ID, "error", err)
		return nil, &Error{Kind: KindCollaborator, Code: CodeGenerationFailed, Message: Truncate(err.Error(), 500)}
	}

	data, err := generate.ExtractJSON(output)
	if err != nil {
		s.logger().Warn("generated output is not a manifest", "format_id", f.FormatID.ID, "output", Truncate(output, 200))
		return nil, &Error{Kind: KindCollaborator, Code: CodeGenerationParseFailed, Message: "Failed to parse generated manifest: " + err.Error()}
	}

	if withImages {
		data = s.drawImages(ctx, data, target, brand, req)
	}

	m, perr := manifest.Parse(data)
	var errs []manifest.ValidationError
	if perr != nil {
		errs = []manifest.ValidationError{*perr}
	} else {
		errs = manifest.Validate(ctx, m, target, s.manifestOptions())
	}
	if len(errs) > 0 {
		for _, verr := range errs {
			s.Metrics.RecordValidationError(string(verr.Type))
		}
		return nil, &Error{
			Kind:    KindValidation,
			Code:    CodeValidationFailed,
			Message: "AI-generated creative failed validation. The AI generated invalid assets. Please try again with more specific instructions.",
			Details: errs,
		}
	}

	contextID := req.ContextID
	if contextID == "" {
		contextID = s.newID()
	}

	resp = &api.BuildCreativeResponse{
		ContextID: contextID,
		Status:    buildStatus(req),
		CreativeOutput: api.CreativeOutput{
			Type:     "creative_manifest",
			FormatID: target.FormatID.ID,
			Data:     data,
		},
		RefinementSuggestions: []string{},
	}
	if f.IsGenerative() {
		resp.CreativeOutput.OutputFormatIDs = append([]format.ID(nil), f.OutputFormatIDs...)
	}
	if req.Finalize {
		resp.Message = fmt.Sprintf("Generated %s creative based on your request. Finalized and ready to use.", f.Name)
	} else {
		resp.Message = fmt.Sprintf("Generated %s creative based on your request. Review and refine as needed.", f.Name)
		resp.RefinementSuggestions = append(resp.RefinementSuggestions, refinementSuggestions...)
	}

	s.logger().Info("creative built", "format_id", f.FormatID.ID, "context_id", contextID, "status", resp.Status)
	return resp, nil
}

// brandImages downloads up to generate.MaxBrandImages brand pictures. Pictures
// that cannot be fetched are skipped.
func (s *Server) brandImages(ctx context.Context, brand *generate.BrandContext) []generate.Image {
	if s.BrandImages == nil {
		return nil
	}
	var images []generate.Image
	for _, u := range brand.ImageURLs() {
		if len(images) == generate.MaxBrandImages {
			break
		}
		img, err := s.BrandImages.FetchImage(ctx, u)
		if err != nil {
			s.logger().Warn("skipping brand image", "url", u, "error", err)
			continue
		}
		images = append(images, img)
	}
	return images
}

// drawImages fills the image assets of a generated manifest with pictures
// from the image model. On failure the manifest is returned unchanged and
// validation reports the unfilled urls.
func (s *Server) drawImages(ctx context.Context, data []byte, target *format.CreativeFormat, brand *generate.BrandContext, req api.BuildCreativeRequest) []byte {
	slots := generate.ImageSlots(data)
	if len(slots) == 0 {
		return data
	}
	images, err := s.Images.GenerateImages(ctx, generate.ImageRequest{
		Prompt: generate.ImagePrompt(target.Name, brand, req.Message),
		N:      len(slots),
		APIKey: req.APIKey,
	})
	s.Metrics.RecordGeneration(err)
	if err != nil {
		s.logger().Warn("image generation failed", "format_id", target.FormatID.ID, "error", err)
		return data
	}
	filled, err := generate.InjectImages(data, slots, images)
	if err != nil {
		s.logger().Warn("could not place generated images", "format_id", target.FormatID.ID, "error", err)
		return data
	}
	return filled
}

func buildStatus(req api.BuildCreativeRequest) string {
	switch {
	case req.Finalize:
		return api.StatusFinalized
	case strings.Contains(strings.ToLower(req.Message), "ready"):
		return api.StatusReady
	default:
		return api.StatusDraft
	}
}
