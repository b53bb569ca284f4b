package realtime

import (
	"encoding/json"
	"strings"
)

// AssetSource is the inbound shape of a share-asset request. RawHTMLContent
// is the canonical content field; TestContent is accepted as a legacy
// fallback from older clients. When both are present the canonical field
// wins.
type AssetSource struct {
	AssetID        string `json:"assetId"`
	AssetType      string `json:"assetType,omitempty"`
	RawHTMLContent string `json:"rawHtmlContent,omitempty"`
	TestContent    string `json:"testContent,omitempty"`
}

// AssetPayload is the normalized outbound asset. Consumers see exactly one
// content field regardless of which input field was populated, and use
// AssetID to de-duplicate re-delivered shares.
type AssetPayload struct {
	AssetID        string `json:"assetId"`
	AssetType      string `json:"assetType,omitempty"`
	RawHTMLContent string `json:"rawHtmlContent"`
}

// BuildAssetPayload normalizes a share-asset source into the canonical
// payload. Fails with ErrEmptyContent when neither content field carries a
// non-blank value.
func BuildAssetPayload(src AssetSource) (AssetPayload, error) {
	content := src.RawHTMLContent
	if strings.TrimSpace(content) == "" {
		content = src.TestContent
	}
	if strings.TrimSpace(content) == "" {
		return AssetPayload{}, ErrEmptyContent
	}
	return AssetPayload{
		AssetID:        src.AssetID,
		AssetType:      src.AssetType,
		RawHTMLContent: content,
	}, nil
}

// ParseAssetSource decodes a raw JSON share-asset body.
func ParseAssetSource(data json.RawMessage) (AssetSource, error) {
	var src AssetSource
	if err := json.Unmarshal(data, &src); err != nil {
		return AssetSource{}, err
	}
	return src, nil
}
