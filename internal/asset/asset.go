// Package asset defines the typed asset values carried by creative manifests
// and the structural checks each asset kind must pass.
package asset

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

// Kind discriminates asset variants. It is the value of the asset_type field.
type Kind string

const (
	KindImage         Kind = "image"
	KindVideo         Kind = "video"
	KindAudio         Kind = "audio"
	KindText          Kind = "text"
	KindHTML          Kind = "html"
	KindJavaScript    Kind = "javascript"
	KindCSS           Kind = "css"
	KindURL           Kind = "url"
	KindBrandManifest Kind = "brand_manifest"
	KindVASTTag       Kind = "vast_tag"
	KindWebhook       Kind = "webhook"
)

// Kinds lists every known asset kind.
var Kinds = []Kind{
	KindImage, KindVideo, KindAudio, KindText, KindHTML, KindJavaScript,
	KindCSS, KindURL, KindBrandManifest, KindVASTTag, KindWebhook,
}

// Valid reports whether k is a known asset kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Asset is one typed content item of a manifest. The set of implementations is
// closed; switch on the concrete type to handle every kind.
type Asset interface {
	Kind() Kind
	sealed()
}

type ImageAsset struct {
	URL      string `json:"url"`
	Width    *int   `json:"width,omitempty"`
	Height   *int   `json:"height,omitempty"`
	Format   string `json:"format,omitempty"`
	FileSize *int64 `json:"file_size,omitempty"`
	Alt      string `json:"alt,omitempty"`
}

type VideoAsset struct {
	URL             string   `json:"url"`
	Width           *int     `json:"width,omitempty"`
	Height          *int     `json:"height,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Format          string   `json:"format,omitempty"`
	Codec           string   `json:"codec,omitempty"`
	BitrateMbps     *float64 `json:"bitrate_mbps,omitempty"`
	FileSize        *int64   `json:"file_size,omitempty"`
}

type AudioAsset struct {
	URL             string   `json:"url"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Format          string   `json:"format,omitempty"`
	Codec           string   `json:"codec,omitempty"`
	BitrateKbps     *int     `json:"bitrate_kbps,omitempty"`
	SampleRateHz    *int     `json:"sample_rate_hz,omitempty"`
	Channels        *int     `json:"channels,omitempty"`
	FileSize        *int64   `json:"file_size,omitempty"`
}

type TextAsset struct {
	Content string `json:"content"`
	Length  *int   `json:"length,omitempty"`
	Format  string `json:"format,omitempty"`
}

type HTMLAsset struct {
	Content string `json:"content"`
	Width   *int   `json:"width,omitempty"`
	Height  *int   `json:"height,omitempty"`
}

type CSSAsset struct {
	Content string `json:"content"`
}

type JavaScriptAsset struct {
	Content string `json:"content"`
	Inline  *bool  `json:"inline,omitempty"`
}

type URLAsset struct {
	URL        string `json:"url"`
	URLPurpose string `json:"url_purpose,omitempty"`
}

// BrandManifestAsset carries brand context for generative formats.
type BrandManifestAsset struct {
	URL    string           `json:"url,omitempty"`
	Name   string           `json:"name,omitempty"`
	Colors []string         `json:"colors,omitempty"`
	Fonts  []string         `json:"fonts,omitempty"`
	Tone   string           `json:"tone,omitempty"`
	Assets []map[string]any `json:"assets,omitempty"`
}

type VASTTagAsset struct {
	Content      string   `json:"content,omitempty"`
	URL          string   `json:"url,omitempty"`
	VASTVersion  string   `json:"vast_version,omitempty"`
	VPAIDEnabled *bool    `json:"vpaid_enabled,omitempty"`
	Duration     *float64 `json:"duration_seconds,omitempty"`
}

type WebhookAsset struct {
	URL             string         `json:"url"`
	Method          string         `json:"method,omitempty"`
	TimeoutMS       *int           `json:"timeout_ms,omitempty"`
	ResponseType    string         `json:"response_type,omitempty"`
	SupportedMacros []string       `json:"supported_macros,omitempty"`
	Security        map[string]any `json:"security,omitempty"`
}

func (ImageAsset) Kind() Kind         { return KindImage }
func (VideoAsset) Kind() Kind         { return KindVideo }
func (AudioAsset) Kind() Kind         { return KindAudio }
func (TextAsset) Kind() Kind          { return KindText }
func (HTMLAsset) Kind() Kind          { return KindHTML }
func (CSSAsset) Kind() Kind           { return KindCSS }
func (JavaScriptAsset) Kind() Kind    { return KindJavaScript }
func (URLAsset) Kind() Kind           { return KindURL }
func (BrandManifestAsset) Kind() Kind { return KindBrandManifest }
func (VASTTagAsset) Kind() Kind       { return KindVASTTag }
func (WebhookAsset) Kind() Kind       { return KindWebhook }

func (ImageAsset) sealed()         {}
func (VideoAsset) sealed()         {}
func (AudioAsset) sealed()         {}
func (TextAsset) sealed()          {}
func (HTMLAsset) sealed()          {}
func (CSSAsset) sealed()           {}
func (JavaScriptAsset) sealed()    {}
func (URLAsset) sealed()           {}
func (BrandManifestAsset) sealed() {}
func (VASTTagAsset) sealed()       {}
func (WebhookAsset) sealed()       {}

// requiredStrings lists the string fields each kind cannot be decoded without.
var requiredStrings = map[Kind][]string{
	KindImage:      {"url"},
	KindVideo:      {"url"},
	KindAudio:      {"url"},
	KindText:       {"content"},
	KindHTML:       {"content"},
	KindCSS:        {"content"},
	KindJavaScript: {"content"},
	KindURL:        {"url"},
	KindWebhook:    {"url"},
}

// Decode reads one asset object. The asset_type discriminator selects the
// variant; required fields must be present with the right JSON type.
func Decode(raw []byte) (Asset, *Error) {
	value, dataType, _, err := jsonparser.Get(raw)
	if err != nil || dataType != jsonparser.Object {
		return nil, &Error{Type: ErrInvalidStructure, Message: "Asset must be an object"}
	}
	raw = value

	kindValue, kindType, _, err := jsonparser.Get(raw, "asset_type")
	if err != nil || kindType == jsonparser.NotExist || kindType == jsonparser.Null {
		return nil, &Error{Field: "asset_type", Type: ErrMissingField, Message: "Asset must have asset_type field"}
	}
	if kindType != jsonparser.String {
		return nil, &Error{Field: "asset_type", Type: ErrInvalidType, Message: "asset_type must be a string"}
	}
	name, err := jsonparser.ParseString(kindValue)
	if err != nil {
		return nil, &Error{Field: "asset_type", Type: ErrInvalidType, Message: "asset_type must be a string"}
	}
	kind := Kind(name)
	if !kind.Valid() {
		return nil, &Error{Field: "asset_type", Type: ErrInvalidType, Message: fmt.Sprintf("Unknown asset_type: %s", name)}
	}

	for _, field := range requiredStrings[kind] {
		_, fieldType, _, err := jsonparser.Get(raw, field)
		if err != nil || fieldType == jsonparser.NotExist || fieldType == jsonparser.Null {
			return nil, &Error{
				Field:   field,
				Type:    ErrMissingField,
				Message: fmt.Sprintf("%s asset must have string %s", kindLabel(kind), field),
			}
		}
		if fieldType != jsonparser.String {
			return nil, &Error{
				Field:   field,
				Type:    ErrInvalidType,
				Message: fmt.Sprintf("%s asset must have string %s", kindLabel(kind), field),
			}
		}
	}

	var a Asset
	switch kind {
	case KindImage:
		a, err = decodeInto[ImageAsset](raw)
	case KindVideo:
		a, err = decodeInto[VideoAsset](raw)
	case KindAudio:
		a, err = decodeInto[AudioAsset](raw)
	case KindText:
		a, err = decodeInto[TextAsset](raw)
	case KindHTML:
		a, err = decodeInto[HTMLAsset](raw)
	case KindCSS:
		a, err = decodeInto[CSSAsset](raw)
	case KindJavaScript:
		a, err = decodeInto[JavaScriptAsset](raw)
	case KindURL:
		a, err = decodeInto[URLAsset](raw)
	case KindBrandManifest:
		a, err = decodeInto[BrandManifestAsset](raw)
	case KindVASTTag:
		a, err = decodeInto[VASTTagAsset](raw)
	case KindWebhook:
		a, err = decodeInto[WebhookAsset](raw)
	}
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &Error{
				Field:   typeErr.Field,
				Type:    ErrInvalidType,
				Message: fmt.Sprintf("field %s must be %s, got %s", typeErr.Field, typeErr.Type.Kind(), typeErr.Value),
			}
		}
		return nil, &Error{Type: ErrInvalidStructure, Message: err.Error()}
	}
	return a, nil
}

func decodeInto[T Asset](raw []byte) (Asset, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// PeekKind reads only the asset_type of a raw asset object. It returns "" when the
// discriminator is absent or not a string.
func PeekKind(raw []byte) Kind {
	name, err := jsonparser.GetString(raw, "asset_type")
	if err != nil {
		return ""
	}
	return Kind(name)
}

func kindLabel(k Kind) string {
	switch k {
	case KindHTML:
		return "HTML"
	case KindCSS:
		return "CSS"
	case KindJavaScript:
		return "JavaScript"
	case KindURL:
		return "URL"
	case KindVASTTag:
		return "VAST tag"
	case KindBrandManifest:
		return "Brand manifest"
	}
	s := string(k)
	if s == "" {
		return "Asset"
	}
	return string(s[0]-'a'+'A') + s[1:]
}
