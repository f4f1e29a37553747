// Package preview renders self-contained HTML previews of a validated manifest.
package preview

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"adte.com/adte/creative-agent/internal/asset"
	"adte.com/adte/creative-agent/internal/format"
	"adte.com/adte/creative-agent/internal/manifest"
)

// Input is one rendering context, such as a device class.
type Input struct {
	Name               string            `json:"name"`
	Macros             map[string]string `json:"macros,omitempty"`
	ContextDescription string            `json:"context_description,omitempty"`
}

// DefaultInputs are used when a caller supplies no inputs.
func DefaultInputs() []Input {
	return []Input{
		{Name: "Desktop", Macros: map[string]string{"DEVICE_TYPE": "desktop"}},
		{Name: "Mobile", Macros: map[string]string{"DEVICE_TYPE": "mobile"}},
		{Name: "Tablet", Macros: map[string]string{"DEVICE_TYPE": "tablet"}},
	}
}

// Hints describe the rendered creative to callers embedding the preview.
type Hints struct {
	PrimaryMediaType    string             `json:"primary_media_type"`
	EstimatedDimensions *format.Dimensions `json:"estimated_dimensions,omitempty"`
	HasClickthrough     bool               `json:"has_clickthrough"`
}

// Embedding carries iframe recommendations for a render.
type Embedding struct {
	RecommendedSandbox string `json:"recommended_sandbox"`
	RequiresHTTPS      bool   `json:"requires_https"`
	SupportsFullscreen bool   `json:"supports_fullscreen"`
}

// Document is the rendered preview of one input.
type Document struct {
	Input      Input
	Dimensions format.Dimensions
	HTML       []byte
	Hints      Hints
	Embedding  Embedding
}

// Slug names the document in storage: the lower-cased input name with spaces
// replaced by dashes.
func (d Document) Slug() string {
	return Slug(d.Input.Name)
}

func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "variant"
	}
	return b.String()
}

var (
	fallbackDisplay = format.Dimensions{Width: 300, Height: 250}
	fallbackVideo   = format.Dimensions{Width: 640, Height: 360}
)

// TargetDimensions is the canvas size of a format's preview.
func TargetDimensions(f *format.CreativeFormat) format.Dimensions {
	if d, ok := f.PrimaryRender(); ok {
		return d
	}
	if f.Type == format.TypeVideo {
		return fallbackVideo
	}
	return fallbackDisplay
}

type page struct {
	Title    string
	Label    string
	Width    int
	Height   int
	Name     string
	ImageURL template.URL
	VideoURL template.URL
	AudioURL template.URL
	ClickURL string
	Macros   []macro
	FormatID string
}

type macro struct {
	Name  string
	Value string
}

var pageTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="adcp:format_id" content="{{.FormatID}}">
{{- range .Macros}}
    <meta name="adcp:macro:{{.Name}}" content="{{.Value}}">
{{- end}}
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            width: {{.Width}}px;
            height: {{.Height}}px;
            overflow: hidden;
            font-family: Arial, sans-serif;
        }
        .creative-container {
            width: 100%;
            height: 100%;
            position: relative;
            cursor: pointer;
        }
        .creative-container img, .creative-container video {
            width: 100%;
            height: 100%;
            object-fit: cover;
        }
        .placeholder {
            background: #f0f0f0;
            width: 100%;
            height: 100%;
            display: flex;
            flex-direction: column;
            align-items: center;
            justify-content: center;
            color: #666;
        }
        .preview-label {
            position: absolute;
            top: 5px;
            left: 5px;
            background: rgba(0,0,0,0.7);
            color: white;
            padding: 2px 6px;
            font-size: 10px;
            border-radius: 3px;
        }
    </style>
</head>
<body>
    <div class="creative-container" onclick="handleClick()">
{{- if .ImageURL}}
        <img src="{{.ImageURL}}" alt="{{.Name}}">
{{- else if .VideoURL}}
        <video src="{{.VideoURL}}" muted autoplay loop playsinline></video>
{{- else}}
        <div class="placeholder">{{.Name}}{{if .AudioURL}}<audio src="{{.AudioURL}}" controls></audio>{{end}}</div>
{{- end}}
        <div class="preview-label">{{.Label}}</div>
    </div>
    <script>
        function handleClick() {
{{- if .ClickURL}}
            window.open({{.ClickURL}}, "_blank");
{{- else}}
            console.log("Click registered - no URL configured");
{{- end}}
        }
    </script>
</body>
</html>
`))

// safeURL marks raw as trusted for the template. Data URIs would otherwise be
// rewritten by html/template.
func safeURL(raw string) (template.URL, bool) {
	if asset.ValidateURL(raw) != nil {
		return "", false
	}
	return template.URL(strings.TrimSpace(raw)), true
}

// Render produces the preview document of m for one input. It performs no I/O
// and gives identical output for identical arguments. Asset URLs that fail
// asset.ValidateURL are left out of the page.
func Render(f *format.CreativeFormat, m *manifest.Manifest, in Input) (Document, error) {
	dims := TargetDimensions(f)
	p := page{
		Title:    fmt.Sprintf("%s - %s", f.Name, in.Name),
		Label:    in.Name,
		Width:    dims.Width,
		Height:   dims.Height,
		Name:     f.Name,
		FormatID: f.FormatID.ID,
	}

	mediaType := "placeholder"
	for _, typed := range m.TypedAssets() {
		switch a := typed.Asset.(type) {
		case asset.ImageAsset:
			if p.ImageURL != "" || p.VideoURL != "" {
				continue
			}
			if u, ok := safeURL(a.URL); ok {
				p.ImageURL = u
				mediaType = "image"
			}
		case asset.VideoAsset:
			if p.ImageURL != "" || p.VideoURL != "" {
				continue
			}
			if u, ok := safeURL(a.URL); ok {
				p.VideoURL = u
				mediaType = "video"
			}
		case asset.AudioAsset:
			if u, ok := safeURL(a.URL); ok && p.AudioURL == "" {
				p.AudioURL = u
			}
		case asset.URLAsset:
			if u, ok := safeURL(a.URL); ok && p.ClickURL == "" {
				p.ClickURL = string(u)
			}
		}
	}
	if mediaType == "placeholder" && p.AudioURL != "" {
		mediaType = "audio"
	}

	names := make([]string, 0, len(in.Macros))
	for name := range in.Macros {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.Macros = append(p.Macros, macro{Name: name, Value: in.Macros[name]})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return Document{}, fmt.Errorf("render preview %s: %w", in.Name, err)
	}

	hints := Hints{PrimaryMediaType: mediaType, HasClickthrough: p.ClickURL != ""}
	if _, ok := f.PrimaryRender(); ok {
		d := dims
		hints.EstimatedDimensions = &d
	}

	return Document{
		Input:      in,
		Dimensions: dims,
		HTML:       buf.Bytes(),
		Hints:      hints,
		Embedding: Embedding{
			RecommendedSandbox: "allow-scripts allow-same-origin",
			RequiresHTTPS:      false,
			SupportsFullscreen: f.Type == format.TypeVideo,
		},
	}, nil
}
