package format

import (
	"fmt"

	"adte.com/adte/creative-agent/internal/asset"
)

const (
	DefaultAgentURL  = "https://creative.adcontextprotocol.org"
	DefaultAgentName = "AdCP Standard Creative Agent"
)

// AgentCapabilities are advertised alongside the catalog.
var AgentCapabilities = []string{"validation", "assembly", "generation", "preview"}

var commonMacros = []string{
	"MEDIA_BUY_ID",
	"CREATIVE_ID",
	"CACHEBUSTER",
	"CLICK_URL",
	"IMPRESSION_URL",
	"DEVICE_TYPE",
	"GDPR",
	"GDPR_CONSENT",
	"US_PRIVACY",
	"GPP_STRING",
}

const (
	vastSpecURL   = "https://iabtechlab.com/standards/video-ad-serving-template-vast/"
	nativeSpecURL = "https://iabtechlab.com/standards/openrtb-native/"
)

func macros(extra ...string) []string {
	out := make([]string, 0, len(commonMacros)+len(extra))
	out = append(out, commonMacros...)
	return append(out, extra...)
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }
func strs(v ...string) []string { return v }

func videoMacros(extra ...string) []string {
	return macros(append([]string{"VIDEO_ID", "POD_POSITION", "CONTENT_GENRE"}, extra...)...)
}

func doohMacros(extra ...string) []string {
	return macros(append([]string{"SCREEN_ID", "VENUE_TYPE", "VENUE_LAT", "VENUE_LONG"}, extra...)...)
}

func required(id string, kind asset.Kind, req *Requirements) AssetRequirement {
	return AssetRequirement{AssetID: id, AssetType: kind, Required: true, Requirements: req}
}

func optional(id string, kind asset.Kind, req *Requirements) AssetRequirement {
	return AssetRequirement{AssetID: id, AssetType: kind, Required: false, Requirements: req}
}

func described(text string) *Requirements {
	return &Requirements{Description: text}
}

type displaySize struct {
	width, height int
	name          string
	imageDesc     string
	maxImageMB    float64
}

func (s displaySize) dims() string {
	return fmt.Sprintf("%dx%d", s.width, s.height)
}

var displaySizes = []displaySize{
	{300, 250, "Medium Rectangle", "static image banner", 0.2},
	{728, 90, "Leaderboard", "static image banner", 0.15},
	{320, 50, "Mobile Banner", "mobile banner", 0.05},
	{160, 600, "Wide Skyscraper", "wide skyscraper banner", 0.15},
	{336, 280, "Large Rectangle", "large rectangle banner", 0.25},
	{300, 600, "Half Page", "half page banner", 0.3},
	{970, 250, "Billboard", "billboard banner", 0.4},
}

var generativeDescriptions = map[string]string{
	"300x250": "banner",
	"728x90":  "banner",
	"320x50":  "mobile banner",
	"160x600": "wide skyscraper",
	"336x280": "large rectangle",
	"300x600": "half page",
	"970x250": "billboard",
}

func generativeFormats() []Definition {
	defs := make([]Definition, 0, len(displaySizes))
	for _, s := range displaySizes {
		defs = append(defs, Definition{
			ID:              fmt.Sprintf("display_%s_generative", s.dims()),
			Name:            s.name + " - AI Generated",
			Description:     fmt.Sprintf("AI-generated %s %s from brand context and prompt", s.dims(), generativeDescriptions[s.dims()]),
			Type:            TypeUniversal,
			Category:        CategoryCustom,
			Dimensions:      s.dims(),
			OutputFormatIDs: []string{fmt.Sprintf("display_%s_image", s.dims())},
			Macros:          macros(),
			Assets: []AssetRequirement{
				required("brand_context", asset.KindBrandManifest, described("Brand information and product offerings for AI generation")),
				required("generation_prompt", asset.KindText, described("Text prompt describing the desired creative")),
			},
		})
	}
	return defs
}

func videoFile(req *Requirements) []AssetRequirement {
	return []AssetRequirement{required("video_file", asset.KindVideo, req)}
}

func videoFormats() []Definition {
	standardRatios := strs("16:9", "9:16", "1:1", "4:5")
	videoTypes := strs("mp4", "mov", "webm")
	ctvTypes := strs("mp4", "mov")

	sized := func(w, h int, name, desc, ratio string, maxMB float64, fileDesc string) Definition {
		return Definition{
			ID:          fmt.Sprintf("video_%dx%d", w, h),
			Name:        name,
			Description: desc,
			Type:        TypeVideo,
			IsStandard:  true,
			Dimensions:  fmt.Sprintf("%dx%d", w, h),
			Macros:      videoMacros(),
			Requirements: &FormatRequirements{
				MaxFileSizeMB:     floatp(maxMB),
				AcceptableFormats: videoTypes,
				AspectRatios:      strs(ratio),
			},
			Assets: videoFile(&Requirements{
				Width:             intp(w),
				Height:            intp(h),
				AcceptableFormats: videoTypes,
				Description:       fileDesc,
			}),
		}
	}
	ctv := func(id, name, desc string) Definition {
		return Definition{
			ID:               id,
			Name:             name,
			Description:      desc,
			Type:             TypeVideo,
			IsStandard:       true,
			IABSpecification: vastSpecURL,
			Accepts3PTags:    true,
			Macros:           videoMacros("PLAYER_SIZE"),
			Requirements: &FormatRequirements{
				DurationSeconds:   floatp(30),
				MaxFileSizeMB:     floatp(75),
				AcceptableFormats: ctvTypes,
				AspectRatios:      strs("16:9"),
			},
			Assets: videoFile(&Requirements{
				DurationSeconds:   floatp(30),
				AcceptableFormats: ctvTypes,
				Description:       "30-second CTV-optimized video file (1920x1080 recommended)",
			}),
		}
	}

	return []Definition{
		{
			ID:               "video_standard_30s",
			Name:             "Standard Video - 30 seconds",
			Description:      "30-second video ad in standard aspect ratios",
			Type:             TypeVideo,
			IsStandard:       true,
			IABSpecification: vastSpecURL,
			Accepts3PTags:    true,
			Macros:           videoMacros(),
			Requirements: &FormatRequirements{
				DurationSeconds:   floatp(30),
				MaxFileSizeMB:     floatp(50),
				AcceptableFormats: videoTypes,
				AspectRatios:      standardRatios,
			},
			Assets: videoFile(&Requirements{
				DurationSeconds:   floatp(30),
				AcceptableFormats: videoTypes,
				Description:       "30-second video file",
			}),
		},
		{
			ID:               "video_standard_15s",
			Name:             "Standard Video - 15 seconds",
			Description:      "15-second video ad in standard aspect ratios",
			Type:             TypeVideo,
			IsStandard:       true,
			IABSpecification: vastSpecURL,
			Accepts3PTags:    true,
			Macros:           videoMacros(),
			Requirements: &FormatRequirements{
				DurationSeconds:   floatp(15),
				MaxFileSizeMB:     floatp(25),
				AcceptableFormats: videoTypes,
				AspectRatios:      standardRatios,
			},
			Assets: videoFile(&Requirements{
				DurationSeconds:   floatp(15),
				AcceptableFormats: videoTypes,
			}),
		},
		{
			ID:               "video_vast_30s",
			Name:             "VAST Video - 30 seconds",
			Description:      "30-second video ad via VAST tag",
			Type:             TypeVideo,
			IsStandard:       true,
			IABSpecification: vastSpecURL,
			Accepts3PTags:    true,
			Macros:           videoMacros(),
			Requirements:     &FormatRequirements{DurationSeconds: floatp(30)},
			Assets: []AssetRequirement{
				required("vast_tag", asset.KindVASTTag, described("VAST 4.x compatible tag")),
			},
		},
		sized(1920, 1080, "Full HD Video - 1920x1080", "1920x1080 Full HD video (16:9)", "16:9", 100, "1920x1080 video file"),
		sized(1280, 720, "HD Video - 1280x720", "1280x720 HD video (16:9)", "16:9", 75, "1280x720 video file"),
		sized(1080, 1920, "Vertical Video - 1080x1920", "1080x1920 vertical video (9:16) for mobile stories", "9:16", 100, "1080x1920 vertical video file"),
		sized(1080, 1080, "Square Video - 1080x1080", "1080x1080 square video (1:1) for social feeds", "1:1", 100, "1080x1080 square video file"),
		ctv("video_ctv_preroll_30s", "CTV Pre-Roll - 30 seconds", "30-second pre-roll ad for Connected TV and streaming platforms"),
		ctv("video_ctv_midroll_30s", "CTV Mid-Roll - 30 seconds", "30-second mid-roll ad for Connected TV and streaming platforms"),
	}
}

func displayImageFormats() []Definition {
	defs := make([]Definition, 0, len(displaySizes))
	for _, s := range displaySizes {
		defs = append(defs, Definition{
			ID:          fmt.Sprintf("display_%s_image", s.dims()),
			Name:        s.name + " - Image",
			Description: s.dims() + " " + s.imageDesc,
			Type:        TypeDisplay,
			IsStandard:  true,
			Dimensions:  s.dims(),
			Macros:      macros(),
			Assets: []AssetRequirement{
				required("banner_image", asset.KindImage, &Requirements{
					Width:             intp(s.width),
					Height:            intp(s.height),
					MaxFileSizeMB:     floatp(s.maxImageMB),
					AcceptableFormats: strs("jpg", "png", "gif", "webp"),
				}),
				required("click_url", asset.KindURL, described("Clickthrough destination URL")),
			},
		})
	}
	return defs
}

func displayHTMLFormats() []Definition {
	var defs []Definition
	for _, s := range displaySizes {
		if s.width == 320 && s.height == 50 {
			continue
		}
		defs = append(defs, Definition{
			ID:            fmt.Sprintf("display_%s_html", s.dims()),
			Name:          s.name + " - HTML5",
			Description:   s.dims() + " HTML5 creative",
			Type:          TypeDisplay,
			IsStandard:    true,
			Dimensions:    s.dims(),
			Accepts3PTags: true,
			Macros:        macros(),
			Assets: []AssetRequirement{
				required("html_creative", asset.KindHTML, &Requirements{
					Width:         intp(s.width),
					Height:        intp(s.height),
					MaxFileSizeMB: floatp(0.5),
					Description:   "HTML5 creative code",
				}),
			},
		})
	}
	return defs
}

func nativeFormats() []Definition {
	return []Definition{
		{
			ID:               "native_standard",
			Name:             "IAB Native Standard",
			Description:      "Standard native ad with title, description, image, and CTA",
			Type:             TypeNative,
			IsStandard:       true,
			IABSpecification: nativeSpecURL,
			Macros:           macros(),
			Assets: []AssetRequirement{
				required("title", asset.KindText, described("Headline text (25 chars recommended)")),
				required("description", asset.KindText, described("Body copy (90 chars recommended)")),
				required("main_image", asset.KindImage, described("Primary image (1200x627 recommended)")),
				optional("icon", asset.KindImage, described("Brand icon (square, 200x200 recommended)")),
				required("cta_text", asset.KindText, described("Call-to-action text")),
				required("sponsored_by", asset.KindText, described("Advertiser name for disclosure")),
			},
		},
		{
			ID:          "native_content",
			Name:        "Native Content Placement",
			Description: "In-article native ad with editorial styling",
			Type:        TypeNative,
			IsStandard:  true,
			Macros:      macros(),
			Assets: []AssetRequirement{
				required("headline", asset.KindText, described("Editorial-style headline (60 chars recommended)")),
				required("body", asset.KindText, described("Article-style body copy (200 chars recommended)")),
				required("thumbnail", asset.KindImage, described("Thumbnail image (square, 300x300 recommended)")),
				optional("author", asset.KindText, described("Author name for editorial context")),
				required("click_url", asset.KindURL, described("Landing page URL")),
				required("disclosure", asset.KindText, described("Sponsored content disclosure text")),
			},
		},
	}
}

func audioFormats() []Definition {
	audioTypes := strs("mp3", "aac", "m4a")
	var defs []Definition
	for _, a := range []struct {
		seconds int
		maxMB   float64
	}{{15, 0.75}, {30, 1.5}, {60, 3}} {
		defs = append(defs, Definition{
			ID:            fmt.Sprintf("audio_standard_%ds", a.seconds),
			Name:          fmt.Sprintf("Standard Audio - %d seconds", a.seconds),
			Description:   fmt.Sprintf("%d-second audio ad", a.seconds),
			Type:          TypeAudio,
			IsStandard:    true,
			Accepts3PTags: true,
			Macros:        macros("CONTENT_GENRE"),
			Requirements: &FormatRequirements{
				DurationSeconds:   floatp(float64(a.seconds)),
				MaxFileSizeMB:     floatp(a.maxMB),
				AcceptableFormats: audioTypes,
			},
			Assets: []AssetRequirement{
				required("audio_file", asset.KindAudio, &Requirements{
					DurationSeconds:   floatp(float64(a.seconds)),
					AcceptableFormats: audioTypes,
				}),
			},
		})
	}
	return defs
}

func doohFormats() []Definition {
	stillTypes := strs("jpg", "png")
	return []Definition{
		{
			ID:           "dooh_billboard_1920x1080",
			Name:         "Digital Billboard - 1920x1080",
			Description:  "Full HD digital billboard",
			Type:         TypeDOOH,
			IsStandard:   true,
			Dimensions:   "1920x1080",
			Macros:       doohMacros(),
			Requirements: &FormatRequirements{DurationSeconds: floatp(10), MaxFileSizeMB: floatp(5)},
			Assets: []AssetRequirement{
				required("billboard_image", asset.KindImage, &Requirements{
					Width: intp(1920), Height: intp(1080), AcceptableFormats: stillTypes,
				}),
			},
		},
		{
			ID:          "dooh_billboard_landscape",
			Name:        "Digital Billboard - Landscape",
			Description: "Landscape-oriented digital billboard (various sizes)",
			Type:        TypeDOOH,
			IsStandard:  true,
			Macros:      doohMacros(),
			Requirements: &FormatRequirements{
				DurationSeconds: floatp(10),
				MaxFileSizeMB:   floatp(10),
				AspectRatios:    strs("16:9", "21:9"),
			},
			Assets: []AssetRequirement{
				required("billboard_image", asset.KindImage, &Requirements{
					AcceptableFormats: stillTypes, Description: "Landscape image (1920x1080 or larger)",
				}),
			},
		},
		{
			ID:          "dooh_billboard_portrait",
			Name:        "Digital Billboard - Portrait",
			Description: "Portrait-oriented digital billboard (various sizes)",
			Type:        TypeDOOH,
			IsStandard:  true,
			Macros:      doohMacros(),
			Requirements: &FormatRequirements{
				DurationSeconds: floatp(10),
				MaxFileSizeMB:   floatp(10),
				AspectRatios:    strs("9:16"),
			},
			Assets: []AssetRequirement{
				required("billboard_image", asset.KindImage, &Requirements{
					AcceptableFormats: stillTypes, Description: "Portrait image (1080x1920 or similar)",
				}),
			},
		},
		{
			ID:           "dooh_transit_screen",
			Name:         "Transit Screen",
			Description:  "Transit and subway screen displays",
			Type:         TypeDOOH,
			IsStandard:   true,
			Dimensions:   "1920x1080",
			Macros:       doohMacros("TRANSIT_LINE"),
			Requirements: &FormatRequirements{DurationSeconds: floatp(15), MaxFileSizeMB: floatp(5)},
			Assets: []AssetRequirement{
				required("screen_image", asset.KindImage, &Requirements{
					Width: intp(1920), Height: intp(1080), AcceptableFormats: stillTypes,
					Description: "Transit screen content",
				}),
			},
		},
	}
}

// StandardDefinitions returns the built-in catalog grouped by family:
// generative, video, display image, display HTML, native, audio, DOOH.
func StandardDefinitions() []Definition {
	var defs []Definition
	defs = append(defs, generativeFormats()...)
	defs = append(defs, videoFormats()...)
	defs = append(defs, displayImageFormats()...)
	defs = append(defs, displayHTMLFormats()...)
	defs = append(defs, nativeFormats()...)
	defs = append(defs, audioFormats()...)
	defs = append(defs, doohFormats()...)
	return defs
}

// NewStandardRegistry builds the registry of built-in formats.
func NewStandardRegistry(agentURL string) (*Registry, error) {
	if agentURL == "" {
		agentURL = DefaultAgentURL
	}
	return NewRegistry(agentURL, StandardDefinitions())
}
