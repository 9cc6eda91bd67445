package features

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adalundhe/mosaic/core/fragment"
	"github.com/adalundhe/mosaic/core/gateway"
	"github.com/adalundhe/mosaic/core/providers"
)

// Extractor derives features from a fragment.
type Extractor interface {
	Extract(ctx context.Context, frag *fragment.Fragment) (*ExtractedFeatures, error)
}

// extractionResult is the structured schema requested from the backend.
type extractionResult struct {
	Keywords  []string `json:"keywords"`
	Themes    []string `json:"themes"`
	Sentiment string   `json:"sentiment"`
	Palette   []string `json:"palette"`
	Objects   []string `json:"objects"`
	Insight   string   `json:"insight"`
}

// GatewayExtractor extracts features through the generation gateway's
// fast tier. Extraction prompts are cacheable: identical fragment
// content produces identical prompts.
type GatewayExtractor struct {
	gw *gateway.Gateway
}

// NewGatewayExtractor creates an extractor over the given gateway.
func NewGatewayExtractor(gw *gateway.Gateway) *GatewayExtractor {
	return &GatewayExtractor{gw: gw}
}

const extractionSystem = `You analyze creative source material. Respond only with JSON matching ` +
	`{"keywords":[],"themes":[],"sentiment":"","palette":[],"objects":[],"insight":""}. ` +
	`Only report what the material actually supports; leave fields empty rather than inventing.`

// Extract performs one structured extraction call.
func (e *GatewayExtractor) Extract(ctx context.Context, frag *fragment.Fragment) (*ExtractedFeatures, error) {
	var out extractionResult

	req := &gateway.InvokeRequest{
		Tier:      gateway.TierFast,
		System:    extractionSystem,
		Prompt:    buildExtractionPrompt(frag),
		Out:       &out,
		Cacheable: true,
	}
	if frag.IsImage() {
		if img, ok := loadImageAttachment(frag.ImageRef); ok {
			req.Images = []providers.ImageAttachment{img}
		}
	}

	if _, err := e.gw.Invoke(ctx, req); err != nil {
		return nil, fmt.Errorf("feature extraction for %s: %w", frag.ID, err)
	}

	feats := &ExtractedFeatures{
		FragmentID:        frag.ID,
		Keywords:          out.Keywords,
		Themes:            out.Themes,
		Sentiment:         out.Sentiment,
		Insight:           out.Insight,
		Status:            StatusComplete,
		FragmentUpdatedAt: frag.UpdatedAt,
		ExtractedAt:       time.Now(),
	}
	if frag.IsImage() {
		feats.Palette = out.Palette
		feats.Objects = out.Objects
	}
	feats.Summary = summarize(feats)

	return feats, nil
}

var imageMediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// loadImageAttachment reads and encodes the referenced image file. An
// empty, unrecognized, or unreadable reference degrades to the
// text-only prompt rather than failing the extraction.
func loadImageAttachment(ref string) (providers.ImageAttachment, bool) {
	if ref == "" {
		return providers.ImageAttachment{}, false
	}
	mediaType, ok := imageMediaTypes[strings.ToLower(filepath.Ext(ref))]
	if !ok {
		return providers.ImageAttachment{}, false
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return providers.ImageAttachment{}, false
	}
	return providers.ImageAttachment{
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}, true
}

func buildExtractionPrompt(frag *fragment.Fragment) string {
	var b strings.Builder

	if frag.IsImage() {
		b.WriteString("Extract color palette, detected objects, and mood from this image note.\n")
	} else {
		b.WriteString("Extract keywords, themes, and sentiment from this note.\n")
	}

	if frag.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", frag.Title)
	}
	if len(frag.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(frag.Tags, ", "))
	}
	fmt.Fprintf(&b, "Content:\n%s", frag.Text())

	return b.String()
}

// summarize joins the strongest signals into the combined-keyword
// summary used when prompting generation.
func summarize(f *ExtractedFeatures) string {
	parts := make([]string, 0, 3)
	if len(f.Keywords) > 0 {
		parts = append(parts, strings.Join(capped(f.Keywords, 5), ", "))
	}
	if len(f.Themes) > 0 {
		parts = append(parts, "themes: "+strings.Join(capped(f.Themes, 3), ", "))
	}
	if f.Sentiment != "" {
		parts = append(parts, "mood: "+f.Sentiment)
	}
	return strings.Join(parts, "; ")
}

func capped(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}
