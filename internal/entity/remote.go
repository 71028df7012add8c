package entity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"medcmd/pkg"

	"github.com/bytedance/sonic"
)

// RemoteSource calls an HTTP span-extraction model server.
//
// Request:  {"text": "...", "labels": ["patient", ...], "threshold": 0.5}
// Response: {"entities": [{"text": "...", "label": "...", "score": 0.93}]}
type RemoteSource struct {
	url       string
	labels    []string
	threshold float64
	client    *http.Client
}

type spanRequest struct {
	Text      string   `json:"text"`
	Labels    []string `json:"labels"`
	Threshold float64  `json:"threshold"`
}

type spanResponse struct {
	Entities []struct {
		Text  string  `json:"text"`
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"entities"`
}

// NewRemoteSource creates a span-model source. Empty labels means Labels.
func NewRemoteSource(url string, labels []string, threshold float64) *RemoteSource {
	if len(labels) == 0 {
		labels = Labels
	}
	return &RemoteSource{
		url:       url,
		labels:    labels,
		threshold: threshold,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *RemoteSource) Name() string { return "span-model" }

func (r *RemoteSource) Extract(ctx context.Context, text string) ([]pkg.ExtractedEntity, error) {
	body, err := sonic.Marshal(spanRequest{Text: text, Labels: r.labels, Threshold: r.threshold})
	if err != nil {
		return nil, fmt.Errorf("failed to encode span request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build span request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("span model request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read span response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("span model returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed spanResponse
	if err := sonic.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode span response: %w", err)
	}

	out := make([]pkg.ExtractedEntity, 0, len(parsed.Entities))
	for _, e := range parsed.Entities {
		if e.Score < r.threshold {
			continue
		}
		out = append(out, pkg.ExtractedEntity{
			Text:       e.Text,
			RawLabel:   e.Label,
			Confidence: e.Score,
			Source:     pkg.SourceModel,
		})
	}
	return out, nil
}
