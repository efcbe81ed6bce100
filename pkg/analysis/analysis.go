// Package analysis asks an LLM to explain significant benchmark changes.
// The analyzer is strictly best-effort: any failure degrades to an empty
// result and never affects the verdict.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fractalyze/perfgate/pkg/config"
	"github.com/fractalyze/perfgate/pkg/detector"
	"github.com/fractalyze/perfgate/pkg/verdict"
)

const (
	defaultEndpoint = "https://api.anthropic.com/v1/messages"
	apiVersion      = "2023-06-01"
	maxTokens       = 1024

	// maxDiffBytes bounds how much of the code diff goes into the prompt.
	maxDiffBytes = 8000

	requestTimeout = 60 * time.Second
)

// Analyzer calls the Anthropic messages API to explain decisions that
// crossed the regression threshold.
type Analyzer struct {
	log        logrus.FieldLogger
	cfg        *config.AnalysisConfig
	endpoint   string
	httpClient *http.Client
}

// NewAnalyzer creates an analyzer from config.
func NewAnalyzer(log logrus.FieldLogger, cfg *config.AnalysisConfig) *Analyzer {
	return &Analyzer{
		log:        log.WithField("component", "analysis"),
		cfg:        cfg,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// significantChanges renders the decisions that actually moved, one line
// each, for the prompt and the report header.
func significantChanges(decisions []detector.Decision) string {
	var b strings.Builder

	for _, d := range decisions {
		if !d.IsRegression && !d.IsImprovement {
			continue
		}

		fmt.Fprintf(&b, "- %s/%s: %.2f -> %.2f (%+.1f%%)\n",
			d.Benchmark, d.Metric, d.Baseline, d.Current, d.RelativeDelta*100)
	}

	return strings.TrimRight(b.String(), "\n")
}

// readDiff loads the optional code diff file, truncated to keep the
// prompt bounded.
func (a *Analyzer) readDiff() string {
	if a.cfg.DiffFile == "" {
		return "Code diff not available"
	}

	raw, err := os.ReadFile(a.cfg.DiffFile)
	if err != nil {
		a.log.WithError(err).Debug("Diff file not readable")

		return "Code diff not available"
	}

	diff := strings.TrimSpace(string(raw))
	if len(diff) > maxDiffBytes {
		diff = diff[:maxDiffBytes] + "\n... (truncated)"
	}

	return diff
}

func buildPrompt(changes, diff string) string {
	return fmt.Sprintf(`Analyze this benchmark performance change and identify likely causes.

## Performance Changes
%s

## Recent Code Changes
%s

## Instructions
1. Identify the most likely cause of the performance change based on the code diff
2. Be concise (2-3 sentences)
3. If the diff doesn't explain the change, mention possible external factors
4. Format as markdown

Provide your analysis:`, changes, diff)
}

// Analyze produces a markdown report explaining the changed decisions.
// It returns an empty string when nothing crossed the threshold or when
// analysis is not configured.
func (a *Analyzer) Analyze(ctx context.Context, v *verdict.Report) (string, error) {
	if !a.cfg.Enabled || a.cfg.APIKey == "" {
		return "", nil
	}

	changes := significantChanges(v.Decisions)
	if changes == "" {
		return "", nil
	}

	prompt := buildPrompt(changes, a.readDiff())

	text, err := a.callAPI(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("calling analysis API: %w", err)
	}

	return fmt.Sprintf(
		"## AI Performance Analysis\n\n### Significant Changes\n%s\n\n### Analysis\n%s\n",
		changes, text,
	), nil
}

func (a *Analyzer) callAPI(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(apiRequest{
		Model:     a.cfg.Model,
		MaxTokens: maxTokens,
		Messages:  []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting request: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(decoded.Content) == 0 {
		return "", fmt.Errorf("API returned no content")
	}

	return decoded.Content[0].Text, nil
}
