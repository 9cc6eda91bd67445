package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_RespondsByPromptContent(t *testing.T) {
	mock := NewMockProvider().
		Respond("extract keywords", `{"keywords":["warm"]}`).
		Respond("focal question", "What makes this feel warm?").
		Fallback("nothing matched")

	resp, err := mock.Complete(context.Background(), &Request{Prompt: "please extract keywords from this"})
	require.NoError(t, err)
	assert.Equal(t, `{"keywords":["warm"]}`, resp.Text)

	resp, err = mock.Complete(context.Background(), &Request{Prompt: "synthesize a focal question"})
	require.NoError(t, err)
	assert.Equal(t, "What makes this feel warm?", resp.Text)

	resp, err = mock.Complete(context.Background(), &Request{Prompt: "unrelated"})
	require.NoError(t, err)
	assert.Equal(t, "nothing matched", resp.Text)

	assert.Equal(t, 3, mock.CallCount())
}

func TestMockProvider_FailNextRecovers(t *testing.T) {
	injected := errors.New("boom")
	mock := NewMockProvider().FailNext(2, injected)

	_, err := mock.Complete(context.Background(), &Request{Prompt: "a"})
	assert.ErrorIs(t, err, injected)
	_, err = mock.Complete(context.Background(), &Request{Prompt: "b"})
	assert.ErrorIs(t, err, injected)

	resp, err := mock.Complete(context.Background(), &Request{Prompt: "c"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text)
}

func TestMockProvider_HonorsContextCancellation(t *testing.T) {
	mock := NewMockProvider()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mock.Complete(ctx, &Request{Prompt: "a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, mock.CallCount())
}

func TestBaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  BaseConfig
		wantErr bool
	}{
		{"valid", BaseConfig{APIKey: "k", Model: "m", MaxTokens: 100}, false},
		{"missing key", BaseConfig{Model: "m", MaxTokens: 100}, true},
		{"missing model", BaseConfig{APIKey: "k", MaxTokens: 100}, true},
		{"zero tokens", BaseConfig{APIKey: "k", Model: "m"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
