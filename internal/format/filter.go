package format

import (
	"fmt"
	"strings"

	"adte.com/adte/creative-agent/internal/asset"
)

// Criteria narrows a catalog query. Zero-valued fields impose no constraint.
type Criteria struct {
	FormatIDs    []string     `json:"format_ids,omitempty"`
	Type         Type         `json:"type,omitempty"`
	Dimensions   string       `json:"dimensions,omitempty"`
	MaxWidth     *int         `json:"max_width,omitempty"`
	MaxHeight    *int         `json:"max_height,omitempty"`
	MinWidth     *int         `json:"min_width,omitempty"`
	MinHeight    *int         `json:"min_height,omitempty"`
	IsResponsive *bool        `json:"is_responsive,omitempty"`
	NameSearch   string       `json:"name_search,omitempty"`
	AssetTypes   []asset.Kind `json:"asset_types,omitempty"`
}

// CriteriaError reports a malformed query field.
type CriteriaError struct {
	Field   string
	Message string
}

func (e *CriteriaError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (c Criteria) hasBounds() bool {
	return c.MaxWidth != nil || c.MaxHeight != nil || c.MinWidth != nil || c.MinHeight != nil
}

type predicate func(*CreativeFormat) bool

// Filter returns the formats matching every supplied criterion, in definition
// order. Formats without fixed dimensions never match an exact dimension or a
// dimension bound.
func (r *Registry) Filter(c Criteria) ([]*CreativeFormat, error) {
	passes, err := c.compile()
	if err != nil {
		return nil, err
	}

	results := r.All()
	for _, keep := range passes {
		narrowed := results[:0]
		for _, f := range results {
			if keep(f) {
				narrowed = append(narrowed, f)
			}
		}
		results = narrowed
	}
	return results, nil
}

// compile turns the criteria into narrowing passes. Cheap identity checks run
// before dimension and asset scans.
func (c Criteria) compile() ([]predicate, error) {
	var passes []predicate

	if len(c.FormatIDs) > 0 {
		ids := make(map[string]bool, len(c.FormatIDs))
		for _, id := range c.FormatIDs {
			ids[id] = true
		}
		passes = append(passes, func(f *CreativeFormat) bool {
			return ids[f.FormatID.ID]
		})
	}

	if c.Type != "" {
		if !c.Type.Valid() {
			return nil, &CriteriaError{Field: "type", Message: fmt.Sprintf("unknown format type %q", c.Type)}
		}
		passes = append(passes, func(f *CreativeFormat) bool {
			return f.Type == c.Type
		})
	}

	if c.Dimensions != "" {
		want, err := ParseDimensions(c.Dimensions)
		if err != nil {
			return nil, &CriteriaError{Field: "dimensions", Message: err.Error()}
		}
		passes = append(passes, func(f *CreativeFormat) bool {
			got, ok := f.PrimaryRender()
			return ok && got == want
		})
	}

	if c.hasBounds() {
		for _, b := range []struct {
			field string
			v     *int
		}{
			{"max_width", c.MaxWidth}, {"max_height", c.MaxHeight},
			{"min_width", c.MinWidth}, {"min_height", c.MinHeight},
		} {
			if b.v != nil && *b.v < 0 {
				return nil, &CriteriaError{Field: b.field, Message: "must not be negative"}
			}
		}
		passes = append(passes, func(f *CreativeFormat) bool {
			d, ok := f.PrimaryRender()
			if !ok {
				return false
			}
			if c.MaxWidth != nil && d.Width > *c.MaxWidth {
				return false
			}
			if c.MaxHeight != nil && d.Height > *c.MaxHeight {
				return false
			}
			if c.MinWidth != nil && d.Width < *c.MinWidth {
				return false
			}
			if c.MinHeight != nil && d.Height < *c.MinHeight {
				return false
			}
			return true
		})
	}

	if c.IsResponsive != nil {
		responsive := *c.IsResponsive
		passes = append(passes, func(f *CreativeFormat) bool {
			_, fixed := f.PrimaryRender()
			return fixed != responsive
		})
	}

	if c.NameSearch != "" {
		needle := strings.ToLower(c.NameSearch)
		passes = append(passes, func(f *CreativeFormat) bool {
			return strings.Contains(strings.ToLower(f.Name), needle)
		})
	}

	if len(c.AssetTypes) > 0 {
		for _, kind := range c.AssetTypes {
			if !kind.Valid() {
				return nil, &CriteriaError{Field: "asset_types", Message: fmt.Sprintf("unknown asset type %q", kind)}
			}
		}
		passes = append(passes, func(f *CreativeFormat) bool {
			for _, kind := range c.AssetTypes {
				if !f.HasAssetType(kind) {
					return false
				}
			}
			return true
		})
	}

	return passes, nil
}
