package generate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"adte.com/adte/creative-agent/internal/asset"
	"adte.com/adte/creative-agent/internal/format"
)

// Offering is a promoted product or service.
type Offering struct {
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Assets      []map[string]any `json:"assets,omitempty"`
}

// BrandContext is the brand information a creative is generated for.
type BrandContext struct {
	Name      string           `json:"name,omitempty"`
	URL       string           `json:"url,omitempty"`
	Colors    []string         `json:"colors,omitempty"`
	Fonts     []string         `json:"fonts,omitempty"`
	Tone      string           `json:"tone,omitempty"`
	Assets    []map[string]any `json:"assets,omitempty"`
	Offerings []Offering       `json:"offerings,omitempty"`
}

// PromptInput is everything the manifest prompt is assembled from. Target is
// the format the generated manifest must conform to; it differs from Format
// when Format is generative. With GenerateImages the model leaves image urls
// as ImagePlaceholder. AttachedImages counts the brand pictures sent along.
type PromptInput struct {
	Format         *format.CreativeFormat
	Target         *format.CreativeFormat
	Brand          *BrandContext
	Message        string
	Now            time.Time
	GenerateImages bool
	AttachedImages int
}

const SystemPrompt = "You are a creative generation AI for advertising. You answer with a single JSON creative manifest."

// BuildPrompt renders the instructions sent to the model.
func BuildPrompt(in PromptInput) string {
	target := in.Target
	if target == nil {
		target = in.Format
	}

	var spec strings.Builder
	fmt.Fprintf(&spec, "Format: %s\nType: %s\nDescription: %s\n", in.Format.Name, in.Format.Type, in.Format.Description)
	if target != in.Format {
		fmt.Fprintf(&spec, "\nThis will generate a: %s\n", target.Name)
		if d, ok := target.PrimaryRender(); ok {
			fmt.Fprintf(&spec, "Dimensions: %dx%d\n", d.Width, d.Height)
		}
	}
	spec.WriteString("\nRequired Assets:\n")
	for _, req := range target.AssetsRequired {
		fmt.Fprintf(&spec, "- %s (%s)", req.AssetID, req.AssetType)
		if r := req.Requirements; r != nil {
			if r.Width != nil && r.Height != nil {
				fmt.Fprintf(&spec, " - %dx%d", *r.Width, *r.Height)
			}
			if r.Description != "" {
				fmt.Fprintf(&spec, ": %s", r.Description)
			}
		}
		if !req.Required {
			spec.WriteString(" [optional]")
		}
		spec.WriteString("\n")
	}

	var hints []string
	if target.HasAssetType(asset.KindImage) {
		imageURL := "https://..."
		if in.GenerateImages {
			imageURL = ImagePlaceholder
		}
		hints = append(hints, fmt.Sprintf(`For images: {"asset_type": "image", "url": %q, "width": W, "height": H, "format": "png"}`, imageURL))
	}
	hints = append(hints,
		`For text: {"asset_type": "text", "content": "..."}`,
		`For urls: {"asset_type": "url", "url": "https://..."}`,
	)

	return fmt.Sprintf(`Generate a creative manifest for the following request:

%s%s
User Request: %s

Generate a JSON creative manifest with the following structure:
{
  "format_id": %q,
  "assets": {
    // Map each required asset_id to appropriate asset data
    // %s
  },
  "metadata": {
    "generated_by": "AdCP Creative Agent",
    "timestamp": %q
  }
}

Return ONLY the JSON manifest, no additional text.`,
		spec.String(), brandSection(in.Brand, in.AttachedImages), in.Message,
		target.FormatID.ID, strings.Join(hints, "\n    // "), in.Now.UTC().Format(time.RFC3339))
}

func brandSection(b *BrandContext, attached int) string {
	if b == nil {
		return ""
	}
	var s strings.Builder
	s.WriteString("\nBrand Context:\n")
	if b.Name != "" {
		fmt.Fprintf(&s, "- Brand: %s\n", b.Name)
	}
	for _, o := range b.Offerings {
		if o.Name != "" {
			fmt.Fprintf(&s, "- Product: %s\n", o.Name)
		}
		if o.Description != "" {
			fmt.Fprintf(&s, "  Description: %s\n", o.Description)
		}
		if len(o.Assets) > 0 {
			fmt.Fprintf(&s, "  Assets: %d available\n", len(o.Assets))
		}
	}
	if b.URL != "" {
		fmt.Fprintf(&s, "- Brand Website: %s\n", b.URL)
	}
	if len(b.Colors) > 0 {
		fmt.Fprintf(&s, "- Brand Colors: %s\n", strings.Join(b.Colors, ", "))
	}
	if len(b.Fonts) > 0 {
		fmt.Fprintf(&s, "- Brand Fonts: %s\n", strings.Join(b.Fonts, ", "))
	}
	if b.Tone != "" {
		fmt.Fprintf(&s, "- Brand Tone: %s\n", b.Tone)
	}
	if len(b.Assets) > 0 {
		fmt.Fprintf(&s, "- Available Brand Assets: %d assets (logos, images, etc.)\n", len(b.Assets))
	}
	if attached > 0 {
		fmt.Fprintf(&s, "- %d brand image(s) are attached for reference\n", attached)
	}
	return s.String()
}

var (
	ErrNoJSON = errors.New("model output contains no JSON object")

	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// ExtractJSON pulls the manifest object out of model output, which may wrap it
// in a fenced code block or surround it with prose.
func ExtractJSON(output string) ([]byte, error) {
	candidate := strings.TrimSpace(output)
	if m := fencedJSON.FindStringSubmatch(output); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	if !json.Valid([]byte(candidate)) {
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start < 0 || end <= start {
			return nil, ErrNoJSON
		}
		candidate = candidate[start : end+1]
	}
	if !json.Valid([]byte(candidate)) || !strings.HasPrefix(candidate, "{") {
		return nil, ErrNoJSON
	}
	return []byte(candidate), nil
}
