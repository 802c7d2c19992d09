package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"homematch/models"
)

const tagPrompt = `Extract listing tags from the description below.
Respond with ONLY a JSON object with exactly these keys:
dishwasher, inUnitLaundry, gym, doorman, outdoorSpace, petsAllowed,
renovated, naturalLight (booleans), nearSubwayLines (array of line
names), noiseLevel ("quiet"|"average"|"unknown"), buildingType
("elevator"|"walkup"|"unknown").

Description:
`

const explainPrompt = `In one short sentence, explain to a home seeker why this
listing may suit them. Mention at most two concrete features. Listing:
`

// LLMClient calls a chat-completions style endpoint for tag extraction
// and match explanations. Transient failures (network, 429, 5xx) are
// retried with capped exponential backoff; anything else fails fast and
// the caller degrades.
type LLMClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	http       *http.Client
	logger     zerolog.Logger
}

// NewLLMClient builds an LLMClient. An empty baseURL or apiKey disables it.
func NewLLMClient(baseURL, apiKey, model string, maxRetries int, logger zerolog.Logger) *LLMClient {
	return &LLMClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxRetries: maxRetries,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "llm").Logger(),
	}
}

// Enabled reports whether the extraction provider is configured.
func (c *LLMClient) Enabled() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// ExtractTags derives the strict tag schema from a listing description.
// The response must contain exactly the schema keys: anything extra is
// a parse failure, reported to the caller so the listing can fall back
// to its pre-enrichment state.
func (c *LLMClient) ExtractTags(ctx context.Context, description string) (*models.Tags, error) {
	if !c.Enabled() {
		return nil, nil
	}

	content, err := c.complete(ctx, tagPrompt+description)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(extractJSON(content)))
	dec.DisallowUnknownFields()
	var tags models.Tags
	if err := dec.Decode(&tags); err != nil {
		return nil, fmt.Errorf("parse tag response: %w", err)
	}
	tags.Normalize()
	return &tags, nil
}

// Explain produces the one-sentence match explanation.
func (c *LLMClient) Explain(ctx context.Context, l *models.Listing, tags *models.Tags) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	summary := fmt.Sprintf("%s — $%.0f %s, %d bed / %.1f bath, %s.",
		l.Title, l.Price, l.PriceType, l.Beds, l.Baths, l.Address)
	if tags != nil && tags.AmenityCount() > 0 {
		summary += fmt.Sprintf(" Amenities: %d. Building: %s, noise: %s.",
			tags.AmenityCount(), tags.BuildingType, tags.NoiseLevel)
	}

	content, err := c.complete(ctx, explainPrompt+summary)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete performs one completion with the retry policy applied.
func (c *LLMClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxInterval = 8 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.maxRetries)), ctx)

	var content string
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		result, err := c.post(ctx, body)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("completion attempt failed")
			return err
		}
		content = result
		return nil
	}, policy)
	if err != nil {
		return "", fmt.Errorf("completion after %d attempts: %w", attempt, err)
	}
	return content, nil
}

func (c *LLMClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err // network errors are retryable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("provider returned %s", resp.Status)
	default:
		io.Copy(io.Discard, resp.Body)
		return "", backoff.Permanent(fmt.Errorf("provider returned %s", resp.Status))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", backoff.Permanent(fmt.Errorf("empty completion response"))
	}
	return parsed.Choices[0].Message.Content, nil
}

// extractJSON trims any prose or code fencing around the first JSON
// object in a completion.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
