// Package manifest checks creative manifests against the asset slots of a
// format.
package manifest

import (
	"fmt"

	"adte.com/adte/creative-agent/internal/asset"
)

type ErrorType string

const (
	ErrJSONSyntax       ErrorType = "json_syntax_error"
	ErrInvalidStructure ErrorType = "invalid_manifest_structure"
	ErrMissingField     ErrorType = ErrorType(asset.ErrMissingField)
	ErrInvalidType      ErrorType = ErrorType(asset.ErrInvalidType)
	ErrMissingAsset     ErrorType = "missing_required_asset"
	ErrInvalidAsset     ErrorType = ErrorType(asset.ErrInvalidStructure)
	ErrInvalidFormatID  ErrorType = "invalid_format_id"
	ErrFormatIDMismatch ErrorType = "format_id_mismatch"
)

// ValidationError describes one problem with a submitted manifest. Path is a
// JSON pointer into the manifest.
type ValidationError struct {
	Path    string         `json:"path"`
	Message string         `json:"message"`
	Type    ErrorType      `json:"type"`
	Hint    string         `json:"hint,omitempty"`
	Example map[string]any `json:"example,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func assetPath(assetID string, field ...string) string {
	p := "/assets/" + escapePointer(assetID)
	for _, f := range field {
		if f != "" {
			p += "/" + escapePointer(f)
		}
	}
	return p
}

// escapePointer applies RFC 6901 escaping to a single reference token.
func escapePointer(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '~':
			out = append(out, '~', '0')
		case '/':
			out = append(out, '~', '1')
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
