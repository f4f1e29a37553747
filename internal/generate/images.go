package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"adte.com/adte/creative-agent/internal/security"
)

// MaxBrandImages caps how many brand pictures go to the model.
const MaxBrandImages = 5

// ImageURLs lists the image asset URLs of the offerings followed by the
// brand's own assets, without duplicates.
func (b *BrandContext) ImageURLs() []string {
	if b == nil {
		return nil
	}
	var urls []string
	seen := make(map[string]bool)
	collect := func(assets []map[string]any) {
		for _, a := range assets {
			if kind, _ := a["asset_type"].(string); kind != "image" {
				continue
			}
			u, _ := a["url"].(string)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
		}
	}
	for _, o := range b.Offerings {
		collect(o.Assets)
	}
	collect(b.Assets)
	return urls
}

// ImageFetcher downloads a brand picture.
type ImageFetcher interface {
	FetchImage(ctx context.Context, rawURL string) (Image, error)
}

// HTTPImageFetcher downloads images with a GET. Guard vets the target before
// any request is sent and redirects are not followed.
type HTTPImageFetcher struct {
	Client   *http.Client
	Timeout  time.Duration
	MaxBytes int64
	Guard    func(ctx context.Context, rawURL string) error
}

func NewHTTPImageFetcher() *HTTPImageFetcher {
	return &HTTPImageFetcher{
		Client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Timeout:  10 * time.Second,
		MaxBytes: 10 << 20,
		Guard: func(ctx context.Context, rawURL string) error {
			return security.CheckOutboundURL(ctx, rawURL, nil)
		},
	}
}

var ErrImageTooLarge = errors.New("image exceeds size limit")

func (f *HTTPImageFetcher) FetchImage(ctx context.Context, rawURL string) (Image, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	if f.Guard != nil {
		if err := f.Guard(ctx, rawURL); err != nil {
			return Image{}, fmt.Errorf("brand image not allowed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Image{}, fmt.Errorf("build brand image request: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("fetch brand image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("brand image returned status %d", resp.StatusCode)
	}
	mimeType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mimeType, "image/") {
		return Image{}, fmt.Errorf("brand image has content type %q", resp.Header.Get("Content-Type"))
	}

	body := io.Reader(resp.Body)
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Image{}, fmt.Errorf("read brand image: %w", err)
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return Image{}, ErrImageTooLarge
	}
	return Image{MIMEType: mimeType, Data: data}, nil
}

// ImagePlaceholder is the url the model writes into image assets when the
// pictures are drawn separately.
const ImagePlaceholder = "GENERATED_IMAGE_PLACEHOLDER"

// ImagePrompt describes the picture wanted for a creative.
func ImagePrompt(target string, brand *BrandContext, message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Advertising image for a %s creative. %s", target, message)
	if brand != nil {
		if brand.Name != "" {
			fmt.Fprintf(&b, "\nBrand: %s", brand.Name)
		}
		if len(brand.Colors) > 0 {
			fmt.Fprintf(&b, "\nBrand colors: %s", strings.Join(brand.Colors, ", "))
		}
		if brand.Tone != "" {
			fmt.Fprintf(&b, "\nTone: %s", brand.Tone)
		}
	}
	return b.String()
}

// ImageSlots returns the ids of the image assets of a manifest, in document
// order.
func ImageSlots(manifest []byte) []string {
	var slots []string
	jsonparser.ObjectEach(manifest, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		if dataType != jsonparser.Object {
			return nil
		}
		if kind, err := jsonparser.GetString(value, "asset_type"); err == nil && kind == "image" {
			slots = append(slots, string(key))
		}
		return nil
	}, "assets")
	return slots
}

// InjectImages writes images into the url of the given slots, pairing them
// in order. Slots without an image keep their url.
func InjectImages(manifest []byte, slots []string, images []Image) ([]byte, error) {
	out := append([]byte(nil), manifest...)
	for i, slot := range slots {
		if i >= len(images) {
			break
		}
		var err error
		out, err = jsonparser.Set(out, []byte(strconv.Quote(images[i].DataURI())), "assets", slot, "url")
		if err != nil {
			return nil, fmt.Errorf("set image for %s: %w", slot, err)
		}
	}
	return out, nil
}
