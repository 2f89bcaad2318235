// Package vision classifies waste photos with a generative vision model.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/niramay/internal/model"
)

const (
	MaxImageBytes = 4 << 20

	MinPoints = 10
	MaxPoints = 40

	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel    = "gemini-1.5-flash"

	// DefaultAnalysis is returned whenever the model cannot be used.
	DefaultAnalysis = "Automatic analysis unavailable. An administrator will review this report."
)

var (
	ErrImageTooLarge    = errors.New("image exceeds 4MB")
	ErrUnsupportedImage = errors.New("image must be JPEG, PNG or WEBP")
	ErrEmptyImage       = errors.New("image is empty")
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// DetectImageType sniffs data and returns its MIME type if it is an
// accepted upload format.
func DetectImageType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if len(data) > MaxImageBytes {
		return "", ErrImageTooLarge
	}
	ct := http.DetectContentType(data)
	if !allowedTypes[ct] {
		return "", ErrUnsupportedImage
	}
	return ct, nil
}

type Config struct {
	APIKey   string
	Model    string
	Endpoint string
}

// Input is one photo plus the context the citizen supplied.
type Input struct {
	Image       []byte
	Location    string
	Description string
}

// Result is a sanitized classification. Fallback is set when the
// defaults were substituted for a model answer.
type Result struct {
	Priority        model.Priority `json:"priority_level"`
	SuggestedPoints int            `json:"suggested_points"`
	Analysis        string         `json:"analysis"`
	Fallback        bool           `json:"fallback"`
}

func defaultResult() Result {
	return Result{
		Priority:        model.PriorityMedium,
		SuggestedPoints: model.PriorityMedium.Points(),
		Analysis:        DefaultAnalysis,
		Fallback:        true,
	}
}

type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// Configured returns true if an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.config.APIKey != ""
}

// Classify never fails: an unconfigured client, a transport error or an
// unusable answer all yield the default result.
func (c *Client) Classify(ctx context.Context, in Input) Result {
	if !c.Configured() {
		return defaultResult()
	}
	mime, err := DetectImageType(in.Image)
	if err != nil {
		c.logger.Warn("vision input rejected", "error", err)
		return defaultResult()
	}

	ans, err := c.generate(ctx, mime, in)
	if err != nil {
		c.logger.Warn("vision request failed", "error", err)
		return defaultResult()
	}
	return sanitize(ans)
}

type answer struct {
	PriorityLevel string `json:"priority_level"`
	EcoPoints     int    `json:"eco_points"`
	Analysis      string `json:"analysis"`
}

// sanitize enforces the enumerated priority and the points range.
func sanitize(a answer) Result {
	r := Result{
		Priority:        model.Priority(strings.ToLower(strings.TrimSpace(a.PriorityLevel))),
		SuggestedPoints: a.EcoPoints,
		Analysis:        strings.TrimSpace(a.Analysis),
	}
	if !r.Priority.Valid() {
		r.Priority = model.PriorityMedium
		r.Fallback = true
	}
	if r.SuggestedPoints < MinPoints || r.SuggestedPoints > MaxPoints {
		r.SuggestedPoints = min(max(r.SuggestedPoints, MinPoints), MaxPoints)
		r.Fallback = true
	}
	if r.Analysis == "" {
		r.Analysis = DefaultAnalysis
	}
	return r
}

func prompt(in Input) string {
	var b strings.Builder
	b.WriteString("You are assessing a photo of uncollected waste reported by a citizen.\n")
	b.WriteString("Reply with JSON only: {\"priority_level\": one of low|medium|high|urgent, ")
	b.WriteString("\"eco_points\": integer 10-40, \"analysis\": short description of the waste and hazards}.\n")
	if in.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", in.Location)
	}
	if in.Description != "" {
		fmt.Fprintf(&b, "Citizen description: %s\n", in.Description)
	}
	return b.String()
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, mime string, in Input) (answer, error) {
	var req generateRequest
	req.Contents = []content{{Parts: []part{
		{Text: prompt(in)},
		{InlineData: &inlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(in.Image)}},
	}}}
	req.GenerationConfig.ResponseMimeType = "application/json"

	body, err := json.Marshal(req)
	if err != nil {
		return answer{}, fmt.Errorf("marshal vision request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.Endpoint, c.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return answer{}, fmt.Errorf("create vision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return answer{}, fmt.Errorf("vision API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return answer{}, fmt.Errorf("vision API returned status %d", resp.StatusCode)
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return answer{}, fmt.Errorf("decode vision response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return answer{}, errors.New("vision response has no candidates")
	}

	return parseAnswer(gr.Candidates[0].Content.Parts[0].Text)
}

// parseAnswer accepts the model's JSON, tolerating a fenced code block.
func parseAnswer(text string) (answer, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var a answer
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &a); err != nil {
		return answer{}, fmt.Errorf("decode vision answer: %w", err)
	}
	return a, nil
}
