package features

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/mosaic/core/fragment"
	"github.com/adalundhe/mosaic/core/gateway"
	"github.com/adalundhe/mosaic/core/providers"
)

const extractionPayload = `{"keywords":["window"],"themes":["memory"],` +
	`"sentiment":"nostalgic","palette":["amber"],"objects":["window"],"insight":""}`

func newExtractorGateway(t *testing.T, mock *providers.MockProvider) *gateway.Gateway {
	t.Helper()

	g, err := gateway.New(map[gateway.Tier]providers.ProviderAdapter{
		gateway.TierFast: mock,
	})
	require.NoError(t, err)
	return g
}

func TestExtract_ImageFragmentCarriesAttachment(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	path := filepath.Join(t.TempDir(), "morning-window.png")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	mock := providers.NewMockProvider().Fallback(extractionPayload)
	extractor := NewGatewayExtractor(newExtractorGateway(t, mock))

	feats, err := extractor.Extract(context.Background(), &fragment.Fragment{
		ID:        "img-1",
		Kind:      fragment.KindImage,
		Title:     "morning window",
		ImageRef:  path,
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"amber"}, feats.Palette)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Images, 1)
	assert.Equal(t, "image/png", calls[0].Images[0].MediaType)

	decoded, err := base64.StdEncoding.DecodeString(calls[0].Images[0].Data)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestExtract_UnreadableImageFallsBackToTextPrompt(t *testing.T) {
	mock := providers.NewMockProvider().Fallback(extractionPayload)
	extractor := NewGatewayExtractor(newExtractorGateway(t, mock))

	_, err := extractor.Extract(context.Background(), &fragment.Fragment{
		ID:        "img-2",
		Kind:      fragment.KindImage,
		Title:     "lost scan",
		ImageRef:  filepath.Join(t.TempDir(), "missing.png"),
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Images)
	assert.Contains(t, calls[0].Prompt, "Extract color palette")
}

func TestExtract_TextFragmentHasNoAttachment(t *testing.T) {
	mock := providers.NewMockProvider().Fallback(extractionPayload)
	extractor := NewGatewayExtractor(newExtractorGateway(t, mock))

	_, err := extractor.Extract(context.Background(), textFragment("t-1", time.Now()))
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Images)
}
