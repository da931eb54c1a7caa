package api

import (
	"net/http"

	"github.com/quillworks/quill/internal/ai"
	"github.com/quillworks/quill/internal/identity"
)

type suggestionsPayload struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

func handleAISuggestions(assistant *ai.Assistant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())

		var payload suggestionsPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		out, err := assistant.Suggestions(r.Context(), actor, ai.SuggestionInput{
			Title:    payload.Title,
			Content:  payload.Content,
			Category: payload.Category,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type generatePayload struct {
	Prompt    string `json:"prompt"`
	WordCount int    `json:"wordCount"`
	Tone      string `json:"tone"`
}

func handleAIGenerate(assistant *ai.Assistant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())

		var payload generatePayload
		if !decodeBody(w, r, &payload) {
			return
		}
		out, err := assistant.GenerateContent(r.Context(), actor, ai.GenerateInput{
			Prompt:    payload.Prompt,
			WordCount: payload.WordCount,
			Tone:      payload.Tone,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type seoPayload struct {
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	TargetKeywords []string `json:"targetKeywords"`
}

func handleAIOptimizeSEO(assistant *ai.Assistant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := identity.ActorFrom(r.Context())

		var payload seoPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		out, err := assistant.OptimizeSEO(r.Context(), actor, ai.SEOInput{
			Title:          payload.Title,
			Content:        payload.Content,
			TargetKeywords: payload.TargetKeywords,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
