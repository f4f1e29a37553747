// Package format holds the catalog of creative formats the agent understands
// and the query logic used to discover them.
package format

import (
	"adte.com/adte/creative-agent/internal/asset"
)

// Type is the media family of a format.
type Type string

const (
	TypeDisplay   Type = "display"
	TypeVideo     Type = "video"
	TypeAudio     Type = "audio"
	TypeNative    Type = "native"
	TypeDOOH      Type = "dooh"
	TypeUniversal Type = "universal"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDisplay, TypeVideo, TypeAudio, TypeNative, TypeDOOH, TypeUniversal:
		return true
	}
	return false
}

type Category string

const (
	CategoryStandard Category = "standard"
	CategoryCustom   Category = "custom"
)

// ID identifies a format. AgentURL names the agent that owns the definition.
type ID struct {
	AgentURL string `json:"agent_url"`
	ID       string `json:"id"`
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Render is one visual surface of a format.
type Render struct {
	Role       string     `json:"role"`
	Dimensions Dimensions `json:"dimensions"`
}

// Requirements are the technical constraints declared for one asset slot.
// They document the slot and seed example assets; the manifest validator
// never enforces them numerically.
type Requirements struct {
	Width             *int     `json:"width,omitempty" yaml:"width,omitempty"`
	Height            *int     `json:"height,omitempty" yaml:"height,omitempty"`
	DurationSeconds   *float64 `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	MaxFileSizeMB     *float64 `json:"max_file_size_mb,omitempty" yaml:"max_file_size_mb,omitempty"`
	AcceptableFormats []string `json:"acceptable_formats,omitempty" yaml:"acceptable_formats,omitempty"`
	Description       string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// AssetRequirement declares one asset slot of a format.
type AssetRequirement struct {
	AssetID      string        `json:"asset_id" yaml:"asset_id"`
	AssetType    asset.Kind    `json:"asset_type" yaml:"asset_type"`
	Required     bool          `json:"required" yaml:"required"`
	Requirements *Requirements `json:"requirements,omitempty" yaml:"requirements,omitempty"`
}

// FormatRequirements are format-wide technical constraints. Advisory.
type FormatRequirements struct {
	DurationSeconds   *float64 `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	MaxFileSizeMB     *float64 `json:"max_file_size_mb,omitempty" yaml:"max_file_size_mb,omitempty"`
	AcceptableFormats []string `json:"acceptable_formats,omitempty" yaml:"acceptable_formats,omitempty"`
	AspectRatios      []string `json:"aspect_ratios,omitempty" yaml:"aspect_ratios,omitempty"`
}

// CreativeFormat is a catalog entry. Values handed out by a Registry are
// shared and must not be modified.
type CreativeFormat struct {
	FormatID         ID                  `json:"format_id" yaml:"format_id"`
	Name             string              `json:"name" yaml:"name"`
	Description      string              `json:"description,omitempty" yaml:"description,omitempty"`
	Type             Type                `json:"type" yaml:"type"`
	Category         Category            `json:"category" yaml:"category"`
	IsStandard       bool                `json:"is_standard" yaml:"is_standard"`
	IABSpecification string              `json:"iab_specification,omitempty" yaml:"iab_specification,omitempty"`
	Renders          []Render            `json:"renders,omitempty" yaml:"renders,omitempty"`
	Requirements     *FormatRequirements `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	AssetsRequired   []AssetRequirement  `json:"assets_required" yaml:"assets_required"`
	SupportedMacros  []string            `json:"supported_macros,omitempty" yaml:"supported_macros,omitempty"`
	OutputFormatIDs  []ID                `json:"output_format_ids,omitempty" yaml:"output_format_ids,omitempty"`
	Accepts3PTags    bool                `json:"accepts_3p_tags" yaml:"accepts_3p_tags"`
}

// PrimaryRender returns the dimensions of the primary render, falling back to
// the first render. ok is false for formats without fixed dimensions.
func (f *CreativeFormat) PrimaryRender() (Dimensions, bool) {
	if len(f.Renders) == 0 {
		return Dimensions{}, false
	}
	for _, r := range f.Renders {
		if r.Role == "primary" {
			return r.Dimensions, true
		}
	}
	return f.Renders[0].Dimensions, true
}

// IsGenerative reports whether the format produces manifests for other formats.
func (f *CreativeFormat) IsGenerative() bool {
	return len(f.OutputFormatIDs) > 0
}

// Requirement looks up the slot declared for assetID.
func (f *CreativeFormat) Requirement(assetID string) (AssetRequirement, bool) {
	for _, req := range f.AssetsRequired {
		if req.AssetID == assetID {
			return req, true
		}
	}
	return AssetRequirement{}, false
}

// HasAssetType reports whether any slot of the format takes kind.
func (f *CreativeFormat) HasAssetType(kind asset.Kind) bool {
	for _, req := range f.AssetsRequired {
		if req.AssetType == kind {
			return true
		}
	}
	return false
}
