package ai

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/quillworks/quill/internal/errors"
	"github.com/quillworks/quill/internal/identity"
	"github.com/quillworks/quill/internal/quota"
	"github.com/quillworks/quill/internal/store"
)

// fakeProvider records the requests it serves and returns canned text.
type fakeProvider struct {
	requests []CompletionRequest
	response string
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestAssistant(t *testing.T, provider Provider, limit int) (*Assistant, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	return NewAssistant(provider, quota.NewTracker(s, limit)), s
}

func seedAIUser(t *testing.T, s *store.MemoryStore, id string, role identity.Role) identity.Actor {
	t.Helper()
	err := s.CreateUser(context.Background(), &store.UserRecord{
		Identity:     id,
		Role:         role,
		UsageResetAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return identity.Actor{Identity: id, Role: role}
}

func TestSuggestionsMakesThreeCompletions(t *testing.T) {
	provider := &fakeProvider{response: "Line one\nLine two\nLine three\nLine four\nLine five"}
	assistant, s := newTestAssistant(t, provider, 5)
	actor := seedAIUser(t, s, "alice", identity.RoleStandard)

	got, err := assistant.Suggestions(context.Background(), actor, SuggestionInput{
		Title:    "Testing in Go",
		Content:  "Some draft content.",
		Category: "engineering",
	})
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}

	if len(provider.requests) != 3 {
		t.Fatalf("completions = %d, want 3", len(provider.requests))
	}
	if len(got.Titles) != 4 {
		t.Errorf("titles = %d, want capped at 4", len(got.Titles))
	}
	if len(got.Improvements) != 3 {
		t.Errorf("improvements = %d, want capped at 3", len(got.Improvements))
	}
	if got.SEOScore < 70 || got.SEOScore > 100 {
		t.Errorf("seo score out of range: %d", got.SEOScore)
	}

	if !strings.Contains(provider.requests[0].Prompt, "Testing in Go") {
		t.Errorf("title prompt missing draft title: %q", provider.requests[0].Prompt)
	}
	if provider.requests[0].Temperature != 0.8 || provider.requests[0].MaxTokens != 200 {
		t.Errorf("title request params: %+v", provider.requests[0])
	}
}

func TestSuggestionsConsumesQuota(t *testing.T) {
	provider := &fakeProvider{response: "ok"}
	assistant, s := newTestAssistant(t, provider, 1)
	actor := seedAIUser(t, s, "alice", identity.RoleStandard)

	if _, err := assistant.Suggestions(context.Background(), actor, SuggestionInput{Title: "t"}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	_, err := assistant.Suggestions(context.Background(), actor, SuggestionInput{Title: "t"})
	if !stderrors.Is(err, errors.ErrQuotaExceeded) {
		t.Fatalf("second call: err = %v, want ErrQuotaExceeded", err)
	}
	if calls := len(provider.requests); calls != 3 {
		t.Errorf("provider called %d times; the exhausted call must not reach it", calls)
	}
}

func TestSuggestionsDoesNotRefundOnProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: stderrors.New("upstream unavailable")}
	assistant, s := newTestAssistant(t, provider, 5)
	actor := seedAIUser(t, s, "alice", identity.RoleStandard)

	if _, err := assistant.Suggestions(context.Background(), actor, SuggestionInput{Title: "t"}); err == nil {
		t.Fatal("expected provider error")
	}

	rec, err := s.GetUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if rec.UsageCount != 1 {
		t.Errorf("usage = %d, want 1 (reservation kept on failure)", rec.UsageCount)
	}
}

func TestGenerateContentRequiresPremium(t *testing.T) {
	provider := &fakeProvider{response: "generated body"}
	assistant, s := newTestAssistant(t, provider, 5)

	standard := seedAIUser(t, s, "alice", identity.RoleStandard)
	_, err := assistant.GenerateContent(context.Background(), standard, GenerateInput{Prompt: "topic"})
	if !stderrors.Is(err, errors.ErrPremiumRequired) {
		t.Fatalf("standard user: err = %v, want ErrPremiumRequired", err)
	}
	if len(provider.requests) != 0 {
		t.Error("provider called before the premium gate")
	}

	premium := seedAIUser(t, s, "bob", identity.RolePremium)
	got, err := assistant.GenerateContent(context.Background(), premium, GenerateInput{Prompt: "topic"})
	if err != nil {
		t.Fatalf("premium user: %v", err)
	}
	if got.WordCount != 2 {
		t.Errorf("word count = %d, want 2", got.WordCount)
	}
}

func TestGenerateContentDefaultsAndTokenCap(t *testing.T) {
	provider := &fakeProvider{response: "body"}
	assistant, s := newTestAssistant(t, provider, 5)
	premium := seedAIUser(t, s, "bob", identity.RolePremium)

	if _, err := assistant.GenerateContent(context.Background(), premium, GenerateInput{Prompt: "topic"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	req := provider.requests[0]
	if !strings.Contains(req.Prompt, "500-word") || !strings.Contains(req.Prompt, "professional tone") {
		t.Errorf("defaults not applied: %q", req.Prompt)
	}
	if req.MaxTokens != 1000 {
		t.Errorf("max tokens = %d, want wordCount*2", req.MaxTokens)
	}

	if _, err := assistant.GenerateContent(context.Background(), premium, GenerateInput{Prompt: "topic", WordCount: 3000}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := provider.requests[1].MaxTokens; got != maxGenerateToken {
		t.Errorf("max tokens = %d, want capped at %d", got, maxGenerateToken)
	}
}

func TestOptimizeSEOIncludesKeywords(t *testing.T) {
	provider := &fakeProvider{response: "Recommendation one\nRecommendation two"}
	assistant, s := newTestAssistant(t, provider, 5)
	actor := seedAIUser(t, s, "alice", identity.RoleStandard)

	report, err := assistant.OptimizeSEO(context.Background(), actor, SEOInput{
		Title:          "A Practical Guide to Production Go Services",
		Content:        strings.Repeat("Go services in production. ", 20) + "\n# Heading",
		TargetKeywords: []string{"go", "production"},
	})
	if err != nil {
		t.Fatalf("seo: %v", err)
	}
	if !strings.Contains(provider.requests[0].Prompt, "go, production") {
		t.Errorf("keywords missing from prompt")
	}
	if len(report.Improvements) != 2 {
		t.Errorf("improvements = %d", len(report.Improvements))
	}
	// 30-60 char title, >=300 chars, keyword hit, header, base.
	if report.Score != 100 {
		t.Errorf("score = %d, want 100", report.Score)
	}
}

func TestSEOScore(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		content  string
		keywords []string
		want     int
	}{
		{"empty", "", "", nil, 15},
		{"good title only", strings.Repeat("t", 40), "", nil, 35},
		{"long content only", "", strings.Repeat("c", 300), nil, 35},
		{"keyword in title", strings.Repeat("Go ", 15), "", []string{"go"}, 65},
		{"headers", "", "# Intro", nil, 30},
		{
			"everything",
			"A Practical Guide to Production Go Services",
			strings.Repeat("go ", 120) + "<h2>",
			[]string{"go"},
			100,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := seoScore(tc.title, tc.content, tc.keywords); got != tc.want {
				t.Errorf("seoScore() = %d, want %d", got, tc.want)
			}
		})
	}
}
