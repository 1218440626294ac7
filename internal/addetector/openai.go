package addetector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"podcleaner/internal/models"
)

// ChunkClassifier is the opaque Classifier contract for a single chunk:
// given its segments, return the ad/not-ad decision for every segment id
// the model chose to address. Segments the response omits keep their
// prior IsAd value, per spec §4.5.
type ChunkClassifier interface {
	Classify(ctx context.Context, segments []models.Segment, temperature float32) (map[int]bool, error)
}

// OpenAIClassifier is the concrete ChunkClassifier backed by an
// OpenAI-compatible chat completion API, grounded on the original's use
// of the `openai` Python client against a configurable base_url.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

// NewOpenAIClassifier builds a client for apiKey, optionally pointed at a
// non-default baseURL (for OpenAI-compatible local servers).
func NewOpenAIClassifier(apiKey, baseURL, model string) *OpenAIClassifier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClassifier{client: openai.NewClientWithConfig(cfg), model: model}
}

const systemPrompt = `You are an expert at identifying advertisements within podcast transcripts.
Ads typically feature: transition phrases that break from the main topic, promotional
content describing a product or service, explicit calls to action (visit, buy, sign up,
use code), sponsor or brand mentions, and framing language that opens or closes an ad
block (e.g. "back after this" or "that's thanks to our sponsor"). Segments that merely
mention a brand name in passing, as part of normal conversation, are not ads.

You will be given a numbered list of transcript segments. Decide, for each one, whether
it is part of an advertisement. Respond with ONLY a JSON object of the exact shape:
{"segments": [{"id": <int>, "ad": true|false}, ...]}
with one entry per segment id you were given. Do not include any other text.`

func buildUserPrompt(segments []models.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&b, "ID: %d Text: %s\n", s.ID, s.Text)
	}
	return b.String()
}

type classifyResponse struct {
	Segments []struct {
		ID int  `json:"id"`
		Ad bool `json:"ad"`
	} `json:"segments"`
}

// Classify submits segments as a single chat completion call and parses
// the model's strict-JSON response into an id→ad map.
func (c *OpenAIClassifier) Classify(ctx context.Context, segments []models.Segment, temperature float32) (map[int]bool, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(segments)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("classifier returned no choices")
	}

	var parsed classifyResponse
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response: %w", err)
	}

	result := make(map[int]bool, len(parsed.Segments))
	for _, s := range parsed.Segments {
		result[s.ID] = s.Ad
	}
	return result, nil
}
