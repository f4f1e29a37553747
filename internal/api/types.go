package api

import (
	"encoding/json"
	"errors"
	"time"

	"adte.com/adte/creative-agent/internal/asset"
	"adte.com/adte/creative-agent/internal/format"
	"adte.com/adte/creative-agent/internal/generate"
	"adte.com/adte/creative-agent/internal/manifest"
	"adte.com/adte/creative-agent/internal/preview"
)

// FormatRef references a format either as a bare id string or as an
// {agent_url, id} object.
type FormatRef struct {
	AgentURL string `json:"agent_url,omitempty"`
	ID       string `json:"id"`
}

func (r *FormatRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = FormatRef{ID: id}
		return nil
	}
	var obj struct {
		AgentURL string `json:"agent_url"`
		ID       string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.New("format_id must be a string or an object with an id")
	}
	*r = FormatRef{AgentURL: obj.AgentURL, ID: obj.ID}
	return nil
}

// Request body for list_creative_formats
type ListCreativeFormatsRequest struct {
	FormatIDs    []FormatRef  `json:"format_ids,omitempty"`
	Type         string       `json:"type,omitempty"`
	Dimensions   string       `json:"dimensions,omitempty"`
	MaxWidth     *int         `json:"max_width,omitempty"`
	MaxHeight    *int         `json:"max_height,omitempty"`
	MinWidth     *int         `json:"min_width,omitempty"`
	MinHeight    *int         `json:"min_height,omitempty"`
	IsResponsive *bool        `json:"is_responsive,omitempty"`
	NameSearch   string       `json:"name_search,omitempty"`
	AssetTypes   []asset.Kind `json:"asset_types,omitempty"`
}

// Criteria converts the request into a catalog query.
func (r ListCreativeFormatsRequest) Criteria() format.Criteria {
	c := format.Criteria{
		Type:         format.Type(r.Type),
		Dimensions:   r.Dimensions,
		MaxWidth:     r.MaxWidth,
		MaxHeight:    r.MaxHeight,
		MinWidth:     r.MinWidth,
		MinHeight:    r.MinHeight,
		IsResponsive: r.IsResponsive,
		NameSearch:   r.NameSearch,
		AssetTypes:   r.AssetTypes,
	}
	for _, ref := range r.FormatIDs {
		c.FormatIDs = append(c.FormatIDs, ref.ID)
	}
	return c
}

type CreativeAgent struct {
	AgentURL     string   `json:"agent_url"`
	AgentName    string   `json:"agent_name"`
	Capabilities []string `json:"capabilities"`
}

type ListCreativeFormatsResponse struct {
	Formats        []*format.CreativeFormat `json:"formats"`
	CreativeAgents []CreativeAgent          `json:"creative_agents"`
}

// Request body for preview_creative. CreativeManifest is kept raw so asset
// order survives into validation.
type PreviewCreativeRequest struct {
	FormatID         FormatRef       `json:"format_id"`
	CreativeManifest json.RawMessage `json:"creative_manifest"`
	Inputs           []preview.Input `json:"inputs,omitempty"`
}

type PreviewRender struct {
	RenderID   string             `json:"render_id"`
	PreviewURL string             `json:"preview_url"`
	Role       string             `json:"role"`
	Dimensions *format.Dimensions `json:"dimensions,omitempty"`
	Embedding  preview.Embedding  `json:"embedding"`
}

type Preview struct {
	PreviewID string          `json:"preview_id"`
	Renders   []PreviewRender `json:"renders"`
	Input     preview.Input   `json:"input"`
	Hints     preview.Hints   `json:"hints"`
}

type PreviewCreativeResponse struct {
	Previews       []Preview `json:"previews"`
	InteractiveURL string    `json:"interactive_url,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Request body for validate_creative
type ValidateCreativeRequest struct {
	FormatID         FormatRef       `json:"format_id"`
	CreativeManifest json.RawMessage `json:"creative_manifest"`
}

type ValidateCreativeResponse struct {
	Valid    bool                       `json:"valid"`
	FormatID string                     `json:"format_id"`
	Errors   []manifest.ValidationError `json:"errors"`
}

const (
	OutputModeManifest = "manifest"
	OutputModeCode     = "code"

	StatusDraft     = "draft"
	StatusReady     = "ready"
	StatusFinalized = "finalized"
)

// Request body for build_creative
type BuildCreativeRequest struct {
	Message           string                 `json:"message"`
	FormatID          FormatRef              `json:"format_id"`
	ContextID         string                 `json:"context_id,omitempty"`
	OutputMode        string                 `json:"output_mode,omitempty"`
	PromotedOfferings *generate.BrandContext `json:"promoted_offerings,omitempty"`
	BrandManifest     *generate.BrandContext `json:"brand_manifest,omitempty"`
	Finalize          bool                   `json:"finalize,omitempty"`
	// APIKey pays for generation with the caller's own key.
	APIKey string `json:"gemini_api_key,omitempty"`
}

type CreativeOutput struct {
	Type            string          `json:"type"`
	FormatID        string          `json:"format_id"`
	OutputFormatIDs []format.ID     `json:"output_format_ids,omitempty"`
	Data            json.RawMessage `json:"data"`
}

type BuildCreativeResponse struct {
	Message               string         `json:"message"`
	ContextID             string         `json:"context_id"`
	Status                string         `json:"status"`
	CreativeOutput        CreativeOutput `json:"creative_output"`
	RefinementSuggestions []string       `json:"refinement_suggestions"`
}

// ErrorResponse is the error body shared by every transport.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
