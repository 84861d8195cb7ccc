// Package llm adapts the generative-language service and recovers structured
// data from its free-form output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/FranksOps/seoforge/internal/apperr"
	"github.com/FranksOps/seoforge/internal/metrics"
	"github.com/FranksOps/seoforge/pkg/httpclient"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash"
)

// Completer turns a prompt into model text. Output carries no format
// guarantee; callers parse it with DecodeArray or DecodeObject.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiConfig configures the Gemini REST adapter.
type GeminiConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

// Gemini calls the generateContent REST method.
type Gemini struct {
	cfg    GeminiConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewGemini returns a configuration error when no API key is set.
func NewGemini(cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY is not set", apperr.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout: cfg.Timeout,
		Header:  http.Header{"X-Goog-Api-Key": {cfg.APIKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{cfg: cfg, client: client, logger: logger}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Complete sends prompt as a single user turn and returns the concatenated
// text of the first candidate.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := g.complete(ctx, prompt)
	metrics.CollaboratorCalls.WithLabelValues("llm", metrics.Outcome(err)).Inc()
	if err != nil {
		g.logger.Warn("llm call failed", "model", g.cfg.Model, "err", err)
	}
	return text, err
}

func (g *Gemini) complete(ctx context.Context, prompt string) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(g.cfg.Endpoint, "/"), g.cfg.Model)

	req := generateRequest{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}}
	var resp generateResponse
	if err := g.client.PostJSON(ctx, url, req, &resp); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			return "", fmt.Errorf("%w: gemini returned status %d", apperr.ErrUnavailable, se.StatusCode)
		}
		return "", fmt.Errorf("%w: gemini: %w", apperr.ErrUnavailable, err)
	}

	if resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: gemini blocked prompt: %s", apperr.ErrUnavailable, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", apperr.ErrUnavailable)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
