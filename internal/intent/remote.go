package intent

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

// DefaultHypothesisTemplate frames each label for zero-shot scoring.
const DefaultHypothesisTemplate = "This is a request to {}."

// RemoteClassifier calls an HTTP zero-shot label scoring server.
//
// Request:  {"text": "...", "labels": [...], "hypothesis_template": "..."}
// Response: {"labels": ["assign_medication", ...], "scores": [0.91, ...]}
type RemoteClassifier struct {
	url      string
	labels   []string
	template string
	client   *http.Client
}

type zeroShotRequest struct {
	Text               string   `json:"text"`
	Labels             []string `json:"labels"`
	HypothesisTemplate string   `json:"hypothesis_template"`
}

type zeroShotResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// NewRemoteClassifier creates a zero-shot classifier. Empty labels means pkg.SupportedIntents.
func NewRemoteClassifier(url string, labels []string) *RemoteClassifier {
	if len(labels) == 0 {
		labels = pkg.SupportedIntents
	}
	return &RemoteClassifier{
		url:      url,
		labels:   labels,
		template: DefaultHypothesisTemplate,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *RemoteClassifier) Name() string { return "zero-shot" }

func (c *RemoteClassifier) Classify(ctx context.Context, text string) (pkg.IntentResult, error) {
	body, err := sonic.Marshal(zeroShotRequest{Text: text, Labels: c.labels, HypothesisTemplate: c.template})
	if err != nil {
		return pkg.IntentResult{}, fmt.Errorf("failed to encode zero-shot request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return pkg.IntentResult{}, fmt.Errorf("failed to build zero-shot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return pkg.IntentResult{}, fmt.Errorf("zero-shot request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkg.IntentResult{}, fmt.Errorf("failed to read zero-shot response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return pkg.IntentResult{}, fmt.Errorf("zero-shot server returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed zeroShotResponse
	if err := sonic.Unmarshal(raw, &parsed); err != nil {
		return pkg.IntentResult{}, fmt.Errorf("failed to decode zero-shot response: %w", err)
	}
	if len(parsed.Labels) != len(parsed.Scores) || len(parsed.Labels) == 0 {
		return pkg.IntentResult{}, fmt.Errorf("zero-shot response has %d labels and %d scores", len(parsed.Labels), len(parsed.Scores))
	}

	scores := make([]pkg.IntentScore, len(parsed.Labels))
	for i, label := range parsed.Labels {
		scores[i] = pkg.IntentScore{Intent: label, Score: parsed.Scores[i]}
	}
	return pkg.IntentResult{Alternatives: scores}, nil
}
