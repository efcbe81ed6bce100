// Package alert posts benchmark verdicts to a Slack webhook using Block
// Kit messages. Delivery failures are the caller's to log; they never
// change the verdict.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fractalyze/perfgate/pkg/report"
	"github.com/fractalyze/perfgate/pkg/verdict"
)

const defaultTimeout = 10 * time.Second

// maxAnalysisLines bounds how much AI commentary goes into the message.
const maxAnalysisLines = 5

// Text is a Block Kit text object.
type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Button is a Block Kit button element.
type Button struct {
	Type string `json:"type"`
	Text Text   `json:"text"`
	URL  string `json:"url"`
}

// Block is a Block Kit layout block.
type Block struct {
	Type     string `json:"type"`
	Text     *Text  `json:"text,omitempty"`
	Fields   []Text `json:"fields,omitempty"`
	Elements []any  `json:"elements,omitempty"`
}

// Message is the webhook payload.
type Message struct {
	Blocks []Block `json:"blocks"`
}

// Client posts messages to a Slack incoming webhook.
type Client struct {
	log        logrus.FieldLogger
	webhookURL string
	httpClient *http.Client
}

// NewClient creates a Slack webhook client.
func NewClient(log logrus.FieldLogger, webhookURL string) *Client {
	return &Client{
		log:        log.WithField("component", "alert"),
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// headerFor maps a change type to the message header.
func headerFor(change verdict.ChangeType) string {
	switch change {
	case verdict.ChangeRegression:
		return "Warning: Benchmark Regression Detected"
	case verdict.ChangeImprovement:
		return "Benchmark Improvement Detected"
	case verdict.ChangeMixed:
		return "Benchmark: Mixed Performance Changes"
	default:
		return "Benchmark Run Failed"
	}
}

// BuildMessage assembles the Block Kit message for a verdict. The
// current report supplies per-benchmark metric lines; analysis, when
// non-empty, is trimmed to a short excerpt.
func BuildMessage(
	v *verdict.Report, current *report.BenchmarkReport, runURL, analysis string,
) *Message {
	msg := &Message{
		Blocks: []Block{
			{
				Type: "header",
				Text: &Text{Type: "plain_text", Text: headerFor(v.ChangeType), Emoji: true},
			},
			{
				Type: "section",
				Fields: []Text{
					{Type: "mrkdwn", Text: fmt.Sprintf("*Implementation:*\n%s", v.Implementation)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Commit:*\n`%s`", v.CommitSHA)},
				},
			},
		},
	}

	if current != nil {
		for _, name := range current.BenchmarkNames() {
			msg.Blocks = append(msg.Blocks, Block{
				Type: "section",
				Text: &Text{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*%s*: %s", name, metricLine(current.Benchmarks[name])),
				},
			})
		}
	}

	if excerpt := analysisExcerpt(analysis); excerpt != "" {
		msg.Blocks = append(msg.Blocks, Block{
			Type: "section",
			Text: &Text{Type: "mrkdwn", Text: "*AI Analysis:*\n" + excerpt},
		})
	}

	if runURL != "" {
		msg.Blocks = append(msg.Blocks, Block{
			Type: "actions",
			Elements: []any{
				Button{
					Type: "button",
					Text: Text{Type: "plain_text", Text: "View Run"},
					URL:  runURL,
				},
			},
		})
	}

	return msg
}

func metricLine(entry *report.BenchmarkEntry) string {
	if entry == nil {
		return "N/A"
	}

	var parts []string

	if entry.Latency != nil {
		parts = append(parts, fmt.Sprintf("Latency: %.2f %s", entry.Latency.Value, entry.Latency.Unit))
	}

	if entry.Throughput != nil {
		parts = append(parts, fmt.Sprintf("Throughput: %.2f %s", entry.Throughput.Value, entry.Throughput.Unit))
	}

	if entry.Memory != nil {
		parts = append(parts, fmt.Sprintf("Memory: %.0f %s", entry.Memory.Value, entry.Memory.Unit))
	}

	if len(parts) == 0 {
		return "N/A"
	}

	return strings.Join(parts, " | ")
}

// analysisExcerpt trims AI commentary to a few non-empty lines so the
// Slack message stays readable.
func analysisExcerpt(analysis string) string {
	if analysis == "" {
		return ""
	}

	var lines []string

	for _, line := range strings.Split(analysis, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lines = append(lines, line)
		if len(lines) == maxAnalysisLines {
			break
		}
	}

	return strings.Join(lines, "\n")
}

// Send posts the message to the configured webhook.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("creating slack request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting slack message: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug("Slack alert sent")

	return nil
}
