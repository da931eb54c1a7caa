package ai

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/qmetrics"
	"github.com/quillworks/quill/internal/quota"
	"github.com/rs/zerolog/log"
)

const (
	defaultWordCount = 500
	defaultTone      = "professional"
	maxGenerateToken = 2000
)

// Assistant provides writing assistance backed by a completion provider.
// Metered operations reserve quota before the provider is called; a
// provider failure after the reservation does not refund it.
type Assistant struct {
	provider Provider
	tracker  *quota.Tracker
}

// NewAssistant creates an Assistant.
func NewAssistant(provider Provider, tracker *quota.Tracker) *Assistant {
	return &Assistant{provider: provider, tracker: tracker}
}

// SuggestionInput describes the draft being worked on.
type SuggestionInput struct {
	Title    string
	Content  string
	Category string
}

// Suggestions is the assistant's feedback on a draft.
type Suggestions struct {
	Titles           []string `json:"titles"`
	Improvements     []string `json:"suggestions"`
	Tags             []string `json:"tags"`
	SEOScore         int      `json:"seoScore"`
	ReadabilityScore int      `json:"readabilityScore"`
}

// Suggestions generates title, content, and tag suggestions for a draft.
// This operation is metered for standard users.
func (a *Assistant) Suggestions(ctx context.Context, actor identity.Actor, in SuggestionInput) (*Suggestions, error) {
	const op = "ai.suggestions"

	if err := a.tracker.CheckAndReserve(ctx, actor.Identity); err != nil {
		return nil, err
	}

	titlePrompt := fmt.Sprintf(
		"Generate 4 engaging blog titles for a %s article about: %s. Make them SEO-friendly and clickable.",
		in.Category, in.Title)
	titleText, err := a.complete(ctx, op, CompletionRequest{
		Prompt:      titlePrompt,
		MaxTokens:   200,
		Temperature: 0.8,
	})
	if err != nil {
		return nil, errors.Wrap(op, actor.Identity, err)
	}

	contentPrompt := fmt.Sprintf(
		"Analyze this blog content and provide 3 specific improvement suggestions: %s",
		truncate(in.Content, 1000))
	contentText, err := a.complete(ctx, op, CompletionRequest{
		Prompt:      contentPrompt,
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, errors.Wrap(op, actor.Identity, err)
	}

	tagsPrompt := fmt.Sprintf(
		"Generate 8 relevant SEO tags for a %s blog post about: %s",
		in.Category, in.Title)
	tagsText, err := a.complete(ctx, op, CompletionRequest{
		Prompt:      tagsPrompt,
		MaxTokens:   100,
		Temperature: 0.6,
	})
	if err != nil {
		return nil, errors.Wrap(op, actor.Identity, err)
	}

	return &Suggestions{
		Titles:           limit(splitLines(titleText), 4),
		Improvements:     limit(splitLines(contentText), 3),
		Tags:             limit(splitComma(tagsText), 8),
		SEOScore:         70 + rand.IntN(30),
		ReadabilityScore: 70 + rand.IntN(30),
	}, nil
}

// GenerateInput describes a content generation request.
type GenerateInput struct {
	Prompt    string
	WordCount int
	Tone      string
}

// Generated is a generated blog post body.
type Generated struct {
	Content   string `json:"content"`
	WordCount int    `json:"wordCount"`
}

// GenerateContent writes a full post from a prompt. Premium feature.
func (a *Assistant) GenerateContent(ctx context.Context, actor identity.Actor, in GenerateInput) (*Generated, error) {
	const op = "ai.generate"

	if !actor.Role.AtLeast(identity.RolePremium) {
		return nil, errors.New(errors.ErrorTypeAuth, op, actor.Identity, errors.ErrPremiumRequired)
	}

	wordCount := in.WordCount
	if wordCount <= 0 {
		wordCount = defaultWordCount
	}
	tone := in.Tone
	if tone == "" {
		tone = defaultTone
	}

	prompt := fmt.Sprintf(
		"Write a %d-word blog post with a %s tone about: %s. "+
			"Include an engaging introduction, well-structured body paragraphs, and a compelling conclusion. "+
			"Use markdown formatting for headers and emphasis.",
		wordCount, tone, in.Prompt)

	maxTokens := wordCount * 2
	if maxTokens > maxGenerateToken {
		maxTokens = maxGenerateToken
	}

	text, err := a.complete(ctx, op, CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, errors.Wrap(op, actor.Identity, err)
	}

	return &Generated{
		Content:   text,
		WordCount: len(strings.Fields(text)),
	}, nil
}

// SEOInput describes a post to analyze for search optimization.
type SEOInput struct {
	Title          string
	Content        string
	TargetKeywords []string
}

// SEOReport combines provider recommendations with a heuristic score.
type SEOReport struct {
	Recommendations string   `json:"recommendations"`
	Improvements    []string `json:"improvements"`
	Score           int      `json:"seoScore"`
}

// OptimizeSEO analyzes a post and returns optimization recommendations.
func (a *Assistant) OptimizeSEO(ctx context.Context, actor identity.Actor, in SEOInput) (*SEOReport, error) {
	const op = "ai.seo_optimize"

	keywords := "N/A"
	if len(in.TargetKeywords) > 0 {
		keywords = strings.Join(in.TargetKeywords, ", ")
	}

	prompt := fmt.Sprintf(`Analyze this blog post for SEO optimization:
Title: %s
Content: %s
Target Keywords: %s

Provide specific SEO recommendations including:
1. Title optimization
2. Meta description suggestion
3. Header structure improvements
4. Keyword density analysis
5. Content improvements`,
		in.Title, truncate(in.Content, 1500), keywords)

	text, err := a.complete(ctx, op, CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   500,
		Temperature: 0.5,
	})
	if err != nil {
		return nil, errors.Wrap(op, actor.Identity, err)
	}

	return &SEOReport{
		Recommendations: text,
		Improvements:    splitLines(text),
		Score:           seoScore(in.Title, in.Content, in.TargetKeywords),
	}, nil
}

func (a *Assistant) complete(ctx context.Context, op string, req CompletionRequest) (string, error) {
	text, err := a.provider.Complete(ctx, req)
	if err != nil {
		qmetrics.AICompletionsTotal.WithLabelValues(op, "error").Inc()
		log.Warn().Err(err).Str("operation", op).Str("provider", a.provider.Name()).Msg("completion failed")
		return "", err
	}
	qmetrics.AICompletionsTotal.WithLabelValues(op, "ok").Inc()
	return text, nil
}

// seoScore is a cheap content heuristic, not a crawler simulation.
func seoScore(title, content string, keywords []string) int {
	score := 0
	if len(title) >= 30 && len(title) <= 60 {
		score += 20
	}
	if len(content) >= 300 {
		score += 20
	}
	for _, kw := range keywords {
		lower := strings.ToLower(kw)
		if strings.Contains(strings.ToLower(title), lower) || strings.Contains(strings.ToLower(content), lower) {
			score += 30
			break
		}
	}
	if strings.Contains(content, "#") || strings.Contains(content, "<h") {
		score += 15
	}
	score += 15
	if score > 100 {
		score = 100
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func limit(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
