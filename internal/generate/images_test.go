package generate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adte.com/adte/creative-agent/internal/security"
)

func TestBrandImageURLs(t *testing.T) {
	brand := &BrandContext{
		Assets: []map[string]any{
			{"asset_type": "image", "url": "https://cdn.example.com/logo.png"},
			{"asset_type": "text", "content": "tagline"},
		},
		Offerings: []Offering{{
			Name: "Rocket Skates",
			Assets: []map[string]any{
				{"asset_type": "image", "url": "https://cdn.example.com/skates.png"},
				{"asset_type": "image", "url": "https://cdn.example.com/logo.png"},
				{"asset_type": "image"},
			},
		}},
	}

	assert.Equal(t, []string{
		"https://cdn.example.com/skates.png",
		"https://cdn.example.com/logo.png",
	}, brand.ImageURLs())

	var none *BrandContext
	assert.Empty(t, none.ImageURLs())
}

func imageServer(t *testing.T, contentType string, body []byte) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved.png" {
			http.Redirect(w, r, "/logo.png", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTPImageFetcher(t *testing.T) {
	png := []byte("\x89PNG fake")
	ts := imageServer(t, "image/png; charset=binary", png)

	f := NewHTTPImageFetcher()
	f.Guard = nil

	img, err := f.FetchImage(context.Background(), ts.URL+"/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, png, img.Data)

	_, err = f.FetchImage(context.Background(), ts.URL+"/moved.png")
	assert.ErrorContains(t, err, "status 302")

	f.MaxBytes = 4
	_, err = f.FetchImage(context.Background(), ts.URL+"/logo.png")
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestHTTPImageFetcherRejectsNonImages(t *testing.T) {
	ts := imageServer(t, "text/html", []byte("<html></html>"))
	f := NewHTTPImageFetcher()
	f.Guard = nil

	_, err := f.FetchImage(context.Background(), ts.URL+"/page")
	assert.ErrorContains(t, err, "text/html")
}

func TestHTTPImageFetcherGuardsPrivateTargets(t *testing.T) {
	requested := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
	}))
	t.Cleanup(ts.Close)

	_, err := NewHTTPImageFetcher().FetchImage(context.Background(), ts.URL+"/logo.png")
	assert.ErrorIs(t, err, security.ErrBlockedTarget)
	assert.False(t, requested)
}

func TestInjectImages(t *testing.T) {
	manifest := []byte(`{
  "format_id": "display_300x250_image",
  "assets": {
    "hero": {"asset_type": "image", "url": "GENERATED_IMAGE_PLACEHOLDER"},
    "click_url": {"asset_type": "url", "url": "https://www.example.com"},
    "logo": {"asset_type": "image", "url": "GENERATED_IMAGE_PLACEHOLDER"}
  }
}`)

	slots := ImageSlots(manifest)
	require.Equal(t, []string{"hero", "logo"}, slots)

	img := Image{MIMEType: "image/png", Data: []byte("png")}
	out, err := InjectImages(manifest, slots, []Image{img})
	require.NoError(t, err)

	var doc struct {
		Assets map[string]struct {
			URL string `json:"url"`
		} `json:"assets"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("png")), doc.Assets["hero"].URL)
	assert.Equal(t, ImagePlaceholder, doc.Assets["logo"].URL)
	assert.Equal(t, "https://www.example.com", doc.Assets["click_url"].URL)
	assert.Contains(t, string(manifest), `"hero": {"asset_type": "image", "url": "GENERATED_IMAGE_PLACEHOLDER"}`)

	assert.Empty(t, ImageSlots([]byte(`{"assets": []}`)))
}

func TestOpenAIGeneratorAttachesImages(t *testing.T) {
	var parts []map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		last := req.Messages[len(req.Messages)-1]
		assert.Equal(t, "user", last.Role)
		require.NoError(t, json.Unmarshal(last.Content, &parts))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "{}"}}},
		})
	}))
	t.Cleanup(ts.Close)

	g := NewOpenAIGenerator(Config{APIKey: "k", BaseURL: ts.URL, Model: "test-model"})
	_, err := g.Generate(context.Background(), Request{
		Prompt: "make a banner",
		Images: []Image{{MIMEType: "image/jpeg", Data: []byte("jpg")}},
	})
	require.NoError(t, err)

	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0]["type"])
	assert.Equal(t, "make a banner", parts[0]["text"])
	assert.Equal(t, "image_url", parts[1]["type"])
	imageURL, ok := parts[1]["image_url"].(map[string]any)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(imageURL["url"].(string), "data:image/jpeg;base64,"))
}

func TestOpenAIGeneratorGenerateImages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "image-model", req["model"])
		assert.Equal(t, "b64_json", req["response_format"])
		assert.EqualValues(t, 2, req["n"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data": []map[string]any{
				{"b64_json": base64.StdEncoding.EncodeToString([]byte("one"))},
				{"b64_json": base64.StdEncoding.EncodeToString([]byte("two"))},
			},
		})
	}))
	t.Cleanup(ts.Close)

	g := NewOpenAIGenerator(Config{APIKey: "k", BaseURL: ts.URL, ImageModel: "image-model"})
	require.True(t, g.ImagesEnabled())

	images, err := g.GenerateImages(context.Background(), ImageRequest{Prompt: "a rocket", N: 2})
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, []byte("two"), images[1].Data)
	assert.Equal(t, "image/png", images[1].MIMEType)

	assert.False(t, NewOpenAIGenerator(Config{APIKey: "k"}).ImagesEnabled())
}
