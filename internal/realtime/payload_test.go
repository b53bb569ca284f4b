package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAssetPayload(t *testing.T) {
	tests := []struct {
		name        string
		src         AssetSource
		wantContent string
		wantErr     error
	}{
		{
			name:        "canonical field only",
			src:         AssetSource{AssetID: "a1", RawHTMLContent: "<p>ayah</p>"},
			wantContent: "<p>ayah</p>",
		},
		{
			name:        "legacy fallback only",
			src:         AssetSource{AssetID: "a2", TestContent: "<p>legacy</p>"},
			wantContent: "<p>legacy</p>",
		},
		{
			name:        "canonical wins over fallback",
			src:         AssetSource{AssetID: "a3", RawHTMLContent: "<p>new</p>", TestContent: "<p>old</p>"},
			wantContent: "<p>new</p>",
		},
		{
			name:        "blank canonical falls back",
			src:         AssetSource{AssetID: "a4", RawHTMLContent: "   ", TestContent: "<p>old</p>"},
			wantContent: "<p>old</p>",
		},
		{
			name:    "both empty",
			src:     AssetSource{AssetID: "a5"},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "both blank",
			src:     AssetSource{AssetID: "a6", RawHTMLContent: " \n", TestContent: "\t"},
			wantErr: ErrEmptyContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildAssetPayload(tt.src)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.src.AssetID, got.AssetID)
			assert.Equal(t, tt.wantContent, got.RawHTMLContent)
		})
	}
}

func TestBuildAssetPayloadOutboundShape(t *testing.T) {
	payload, err := BuildAssetPayload(AssetSource{AssetID: "a1", TestContent: "<p>x</p>"})
	require.NoError(t, err)

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "<p>x</p>", out["rawHtmlContent"])
	_, hasLegacy := out["testContent"]
	assert.False(t, hasLegacy, "legacy field must not leak to consumers")
}

func TestParseAssetSource(t *testing.T) {
	src, err := ParseAssetSource(json.RawMessage(`{"assetId":"a1","rawHtmlContent":"<p>x</p>"}`))
	require.NoError(t, err)
	assert.Equal(t, "a1", src.AssetID)
	assert.Equal(t, "<p>x</p>", src.RawHTMLContent)

	_, err = ParseAssetSource(json.RawMessage(`{not json`))
	assert.Error(t, err)
}
