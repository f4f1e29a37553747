package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/xeipuuv/gojsonschema"

	"adte.com/adte/creative-agent/internal/asset"
)

// envelopeSchema describes the manifest wrapper. Asset contents are checked by
// the asset validators, not by the schema.
const envelopeSchema = `{
  "type": "object",
  "required": ["assets"],
  "properties": {
    "format_id": {
      "type": ["string", "object"],
      "required": ["id"],
      "properties": {
        "id": {"type": "string"},
        "agent_url": {"type": "string"}
      }
    },
    "assets": {"type": "object"},
    "metadata": {"type": "object"}
  }
}`

var envelope = mustCompile(envelopeSchema)

func mustCompile(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("compile manifest schema: %v", err))
	}
	return s
}

// Entry is one asset of a manifest, kept as raw JSON until validated.
type Entry struct {
	ID        string
	Raw       []byte
	ValueType jsonparser.ValueType
}

// Manifest is a parsed creative manifest. Assets keep document order.
type Manifest struct {
	FormatID       string
	FormatAgentURL string
	Assets         []Entry
	Metadata       map[string]any
}

// Asset returns the raw entry for assetID.
func (m *Manifest) Asset(assetID string) (Entry, bool) {
	for _, e := range m.Assets {
		if e.ID == assetID {
			return e, true
		}
	}
	return Entry{}, false
}

// AssetIDs lists asset ids in document order.
func (m *Manifest) AssetIDs() []string {
	out := make([]string, len(m.Assets))
	for i, e := range m.Assets {
		out[i] = e.ID
	}
	return out
}

// Typed is a manifest asset decoded into its variant.
type Typed struct {
	ID    string
	Asset asset.Asset
}

// TypedAssets decodes every asset in document order, skipping assets that do
// not decode. Call it on validated manifests.
func (m *Manifest) TypedAssets() []Typed {
	out := make([]Typed, 0, len(m.Assets))
	for _, e := range m.Assets {
		if e.ValueType != jsonparser.Object {
			continue
		}
		a, aerr := asset.Decode(e.Raw)
		if aerr != nil {
			continue
		}
		out = append(out, Typed{ID: e.ID, Asset: a})
	}
	return out
}

// Parse reads a manifest document. Unparsable JSON and a malformed envelope are
// reported as a single error; asset contents are not inspected here.
func Parse(data []byte) (*Manifest, *ValidationError) {
	if !json.Valid(data) {
		return nil, syntaxError(data)
	}

	result, err := envelope.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &ValidationError{Type: ErrJSONSyntax, Message: fmt.Sprintf("Invalid JSON: %v", err)}
	}
	if !result.Valid() {
		return nil, envelopeError(result.Errors())
	}

	m := &Manifest{}
	switch value, dataType, _, _ := jsonparser.Get(data, "format_id"); dataType {
	case jsonparser.String:
		if m.FormatID, err = jsonparser.ParseString(value); err != nil {
			return nil, &ValidationError{Path: "/format_id", Type: ErrInvalidFormatID, Message: "format_id is not a valid string"}
		}
	case jsonparser.Object:
		m.FormatID, _ = jsonparser.GetString(value, "id")
		m.FormatAgentURL, _ = jsonparser.GetString(value, "agent_url")
	}

	seen := make(map[string]bool)
	var dup string
	err = jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		id := string(key)
		if seen[id] {
			dup = id
			return errDuplicateAsset
		}
		seen[id] = true
		m.Assets = append(m.Assets, Entry{ID: id, Raw: value, ValueType: dataType})
		return nil
	}, "assets")
	if errors.Is(err, errDuplicateAsset) {
		return nil, &ValidationError{
			Path:    assetPath(dup),
			Type:    ErrInvalidStructure,
			Message: fmt.Sprintf("Asset '%s' is defined more than once", dup),
		}
	}
	if err != nil {
		return nil, &ValidationError{Path: "/assets", Type: ErrInvalidStructure, Message: fmt.Sprintf("Could not read assets: %v", err)}
	}

	if raw, dataType, _, _ := jsonparser.Get(data, "metadata"); dataType == jsonparser.Object {
		if err := json.Unmarshal(raw, &m.Metadata); err != nil {
			return nil, &ValidationError{Path: "/metadata", Type: ErrInvalidStructure, Message: "metadata must be an object"}
		}
	}
	return m, nil
}

var errDuplicateAsset = errors.New("duplicate asset id")

func syntaxError(data []byte) *ValidationError {
	var v any
	err := json.Unmarshal(data, &v)
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return &ValidationError{
			Type:    ErrJSONSyntax,
			Message: fmt.Sprintf("Invalid JSON at offset %d: %s", syn.Offset, syn.Error()),
			Hint:    "Check for missing quotes, trailing commas or unbalanced braces",
		}
	}
	msg := "Invalid JSON"
	if err != nil {
		msg = fmt.Sprintf("Invalid JSON: %v", err)
	}
	return &ValidationError{Type: ErrJSONSyntax, Message: msg}
}

// envelopeError picks the most fundamental schema failure so a caller sees one
// actionable problem.
func envelopeError(errs []gojsonschema.ResultError) *ValidationError {
	var assetsErr, formatErr, metaErr *ValidationError
	for _, e := range errs {
		field := e.Field()
		property, _ := e.Details()["property"].(string)

		switch {
		case e.Type() == "required" && property == "assets":
			return &ValidationError{
				Path:    "/assets",
				Type:    ErrInvalidStructure,
				Message: "Manifest must contain assets field",
				Hint:    "Add an assets object mapping each asset_id to its asset",
				Example: map[string]any{"assets": map[string]any{}},
			}
		case field == "(root)":
			return &ValidationError{
				Type:    ErrInvalidStructure,
				Message: "Manifest must be a dictionary",
				Hint:    "Submit a JSON object with format_id and assets",
			}
		case strings.HasPrefix(field, "assets"):
			assetsErr = &ValidationError{
				Path:    "/assets",
				Type:    ErrInvalidStructure,
				Message: "assets must be an object mapping asset_id to asset, not a list",
				Hint:    `Use {"assets": {"banner_image": {...}}} instead of a list`,
			}
		case strings.HasPrefix(field, "format_id"):
			formatErr = &ValidationError{
				Path:    "/format_id",
				Type:    ErrInvalidFormatID,
				Message: "format_id must be a string or an object with a string id",
			}
		case strings.HasPrefix(field, "metadata"):
			metaErr = &ValidationError{Path: "/metadata", Type: ErrInvalidStructure, Message: "metadata must be an object"}
		}
	}
	for _, e := range []*ValidationError{assetsErr, formatErr, metaErr} {
		if e != nil {
			return e
		}
	}
	return &ValidationError{Type: ErrInvalidStructure, Message: "Manifest structure is invalid"}
}
