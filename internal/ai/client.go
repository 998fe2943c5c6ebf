// Package ai is the adapter for the AI text service: conversation analysis
// for auto-replies and department classification for routing.
package ai

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-automation/internal/config"
	"github.com/spec-kit/desk-automation/internal/domain"
	"github.com/spec-kit/desk-automation/internal/textutil"
)

// Analyzer is the narrow interface the automation services depend on.
type Analyzer interface {
	AnalyzeMessages(ctx context.Context, messages []domain.ThreadMessage) (domain.Analysis, error)
	ClassifyDepartment(ctx context.Context, subject, body string, teams []string) (string, error)
}

// Client calls the Anthropic Messages API.
type Client struct {
	client anthropic.Client
	model  string
	logger *zap.Logger
}

// NewClient builds an AI client from config.
func NewClient(cfg config.AIConfig, logger *zap.Logger) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
		logger: logger,
	}
}

const analyzePromptTemplate = `You are a customer-support AI.

Rules (follow strictly):
- If the issue is generic (e.g. slow internet, downtime) and needs no technician or payment action:
  Decision: Respond. Sentiment: Positive, Neutral, or Negative. Reply: ONE short paragraph, max 2 sentences.
- If the issue needs installation, payment confirmation, relocation, any attachment, or a field visit:
  Decision: Skip. Sentiment: Positive, Neutral, or Negative. Reply: leave completely blank.
- Never ask the customer for any further information.

Respond exactly:

Decision: <Respond|Skip>
Sentiment: <Positive|Neutral|Negative>
Reply: <blank if Skip>

Customer message:
%s`

const classifyPromptTemplate = `You are a strict classifier. Choose exactly one of the teams below
or output "Unknown" if unsure. RETURN ONLY THE NAME.
Teams:
%s

Subject: %s
Description: %s

Respond with the exact team name above, or "Unknown".
If unsure, return "Unknown"`

var (
	decisionRe  = regexp.MustCompile(`(?i)Decision:\s*(.*)`)
	sentimentRe = regexp.MustCompile(`(?i)Sentiment:\s*(.*)`)
	replyRe     = regexp.MustCompile(`(?i)Reply:\s*([\s\S]*)`)
)

// AnalyzeMessages asks the model whether the last customer message warrants
// an automatic reply. An empty conversation is a Skip, no call made.
func (c *Client) AnalyzeMessages(ctx context.Context, messages []domain.ThreadMessage) (domain.Analysis, error) {
	if len(messages) == 0 {
		return domain.Analysis{Decision: domain.DecisionSkip, Sentiment: domain.SentimentUnknown}, nil
	}
	last := textutil.StripHTML(messages[len(messages)-1].Content)

	output, err := c.complete(ctx, fmt.Sprintf(analyzePromptTemplate, last))
	if err != nil {
		return domain.Analysis{}, err
	}
	return ParseAnalysis(output), nil
}

// ClassifyDepartment maps a ticket to one of the configured team labels, or
// "Unknown" when the model is unsure or answers off-list.
func (c *Client) ClassifyDepartment(ctx context.Context, subject, body string, teams []string) (string, error) {
	sorted := append([]string(nil), teams...)
	sort.Strings(sorted)
	var lines strings.Builder
	for _, team := range sorted {
		lines.WriteString("- " + team + "\n")
	}

	output, err := c.complete(ctx, fmt.Sprintf(classifyPromptTemplate, lines.String(), subject, body))
	if err != nil {
		return "", err
	}
	return NormalizeLabel(output, sorted), nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("ai: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("ai: no text content in response")
}

// ParseAnalysis extracts the Decision/Sentiment/Reply block from model
// output. Anything unrecognized degrades to Skip/Unknown.
func ParseAnalysis(output string) domain.Analysis {
	analysis := domain.Analysis{Decision: domain.DecisionSkip, Sentiment: domain.SentimentUnknown}

	if m := decisionRe.FindStringSubmatch(output); m != nil {
		switch strings.ToLower(strings.TrimSpace(m[1])) {
		case "respond":
			analysis.Decision = domain.DecisionRespond
		case "skip":
			analysis.Decision = domain.DecisionSkip
		}
	}
	if m := sentimentRe.FindStringSubmatch(output); m != nil {
		switch strings.ToLower(strings.TrimSpace(m[1])) {
		case "positive":
			analysis.Sentiment = domain.SentimentPositive
		case "neutral":
			analysis.Sentiment = domain.SentimentNeutral
		case "negative":
			analysis.Sentiment = domain.SentimentNegative
		}
	}
	if m := replyRe.FindStringSubmatch(output); m != nil {
		analysis.Reply = strings.TrimSpace(m[1])
	}
	if analysis.Decision == domain.DecisionSkip {
		analysis.Reply = ""
	}
	return analysis
}

// NormalizeLabel maps raw model output onto the configured label set; any
// other answer is DepartmentUnknown.
func NormalizeLabel(output string, teams []string) string {
	label := strings.ToLower(strings.TrimSpace(output))
	for _, team := range teams {
		if strings.ToLower(team) == label {
			return team
		}
	}
	return domain.DepartmentUnknown
}
