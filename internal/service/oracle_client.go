package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

const oracleSystemPrompt = `You place study sessions into a weekly calendar.
The user message is JSON with "mode", "quotas" (course_number, required_hours), "offered_slots" (day 0=Sunday..6=Saturday, start "HH:MM", one hour each) and optional "preference_text" / "preference_struct".
Return only JSON of the form {"assignments":[{"course_number":"...","day":1,"start":"10:00"}]}.
Use each offered slot at most once, never exceed required_hours per course, prefer two-hour runs and respect the preferences.`

// OracleConfig configures the chat-completions endpoint.
type OracleConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// HTTPSlotOptimizer asks an OpenAI-compatible chat-completions API for placements.
type HTTPSlotOptimizer struct {
	client *http.Client
	cfg    OracleConfig
	logger *zap.Logger
}

// NewHTTPSlotOptimizer builds the client. A nil client gets one with cfg.Timeout.
func NewHTTPSlotOptimizer(cfg OracleConfig, client *http.Client, logger *zap.Logger) *HTTPSlotOptimizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSlotOptimizer{client: client, cfg: cfg, logger: logger}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Optimize sends the request and decodes the assignments from the first choice.
func (o *HTTPSlotOptimizer) Optimize(ctx context.Context, req OptimizationRequest) (*OptimizationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	problem, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode optimization request: %w", err)
	}
	body, err := json.Marshal(chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: oracleSystemPrompt},
			{Role: "user", Content: string(problem)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	url := strings.TrimRight(o.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	started := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "slot optimizer unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "failed to read slot optimizer response")
	}
	o.logger.Debug("slot optimizer responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
		zap.String("mode", string(req.Mode)),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, appErrors.Clone(appErrors.ErrExternalService, fmt.Sprintf("slot optimizer returned status %d", resp.StatusCode))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "malformed slot optimizer response")
	}
	if len(chat.Choices) == 0 {
		return nil, appErrors.Clone(appErrors.ErrExternalService, "slot optimizer returned no choices")
	}

	var result OptimizationResult
	if err := json.Unmarshal([]byte(stripCodeFence(chat.Choices[0].Message.Content)), &result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "slot optimizer returned invalid assignments")
	}
	return &result, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence some models add.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
