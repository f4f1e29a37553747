package format

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrFormatNotFound = errors.New("format not found")

// Definition is the static form of a catalog entry. Dimensions uses the legacy
// "WIDTHxHEIGHT" notation and is converted to a primary render when the
// registry is built.
type Definition struct {
	ID               string
	Name             string
	Description      string
	Type             Type
	Category         Category
	IsStandard       bool
	IABSpecification string
	Dimensions       string
	Requirements     *FormatRequirements
	Assets           []AssetRequirement
	Macros           []string
	OutputFormatIDs  []string
	Accepts3PTags    bool
}

// Registry is an immutable catalog of formats. It is safe for concurrent use.
type Registry struct {
	formats []*CreativeFormat
	byID    map[string]*CreativeFormat
}

// NewRegistry builds a registry owned by agentURL. Duplicate ids, duplicate
// asset slots, malformed dimensions and output format ids that do not resolve
// are reported as errors; callers treat them as fatal.
func NewRegistry(agentURL string, defs []Definition) (*Registry, error) {
	r := &Registry{
		formats: make([]*CreativeFormat, 0, len(defs)),
		byID:    make(map[string]*CreativeFormat, len(defs)),
	}

	var errs []error
	for _, def := range defs {
		if def.ID == "" {
			errs = append(errs, fmt.Errorf("format %q: empty format_id", def.Name))
			continue
		}
		if _, dup := r.byID[def.ID]; dup {
			errs = append(errs, fmt.Errorf("format %s: duplicate format_id", def.ID))
			continue
		}
		if !def.Type.Valid() {
			errs = append(errs, fmt.Errorf("format %s: unknown type %q", def.ID, def.Type))
		}

		f := &CreativeFormat{
			FormatID:         ID{AgentURL: agentURL, ID: def.ID},
			Name:             def.Name,
			Description:      def.Description,
			Type:             def.Type,
			Category:         def.Category,
			IsStandard:       def.IsStandard,
			IABSpecification: def.IABSpecification,
			Requirements:     def.Requirements,
			AssetsRequired:   def.Assets,
			SupportedMacros:  def.Macros,
			Accepts3PTags:    def.Accepts3PTags,
		}
		if f.Category == "" {
			f.Category = CategoryStandard
		}
		if f.AssetsRequired == nil {
			f.AssetsRequired = []AssetRequirement{}
		}
		if def.Dimensions != "" {
			dims, err := ParseDimensions(def.Dimensions)
			if err != nil {
				errs = append(errs, fmt.Errorf("format %s: %w", def.ID, err))
			} else {
				f.Renders = []Render{{Role: "primary", Dimensions: dims}}
			}
		}

		seen := make(map[string]bool, len(def.Assets))
		for _, req := range def.Assets {
			if seen[req.AssetID] {
				errs = append(errs, fmt.Errorf("format %s: duplicate asset_id %s", def.ID, req.AssetID))
			}
			seen[req.AssetID] = true
			if !req.AssetType.Valid() {
				errs = append(errs, fmt.Errorf("format %s: asset %s has unknown type %q", def.ID, req.AssetID, req.AssetType))
			}
		}

		for _, out := range def.OutputFormatIDs {
			f.OutputFormatIDs = append(f.OutputFormatIDs, ID{AgentURL: agentURL, ID: out})
		}

		r.formats = append(r.formats, f)
		r.byID[def.ID] = f
	}

	for _, f := range r.formats {
		for _, out := range f.OutputFormatIDs {
			if _, ok := r.byID[out.ID]; !ok {
				errs = append(errs, fmt.Errorf("format %s: output format %s is not defined", f.FormatID.ID, out.ID))
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid format catalog: %w", errors.Join(errs...))
	}
	return r, nil
}

// Get returns the format with the given id or an error wrapping
// ErrFormatNotFound.
func (r *Registry) Get(id string) (*CreativeFormat, error) {
	f, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFormatNotFound, id)
	}
	return f, nil
}

// All returns every format in definition order.
func (r *Registry) All() []*CreativeFormat {
	out := make([]*CreativeFormat, len(r.formats))
	copy(out, r.formats)
	return out
}

func (r *Registry) Len() int {
	return len(r.formats)
}

// ParseDimensions reads a "WIDTHxHEIGHT" string such as "300x250".
func ParseDimensions(s string) (Dimensions, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Dimensions{}, fmt.Errorf("malformed dimensions %q: expected WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Dimensions{}, fmt.Errorf("malformed dimensions %q: width must be a positive integer", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Dimensions{}, fmt.Errorf("malformed dimensions %q: height must be a positive integer", s)
	}
	return Dimensions{Width: width, Height: height}, nil
}

func (d Dimensions) String() string {
	return strconv.Itoa(d.Width) + "x" + strconv.Itoa(d.Height)
}
