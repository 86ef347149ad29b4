package gateway

import (
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/baristagate/pkg/provider/generative"
)

func TestNormalize(t *testing.T) {
	textResp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "Use a burr grinder."}, {Text: "ignored"}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 42},
	}

	tests := []struct {
		name       string
		resp       *genai.GenerateContentResponse
		modality   generative.Modality
		wantText   string
		wantTokens int
	}{
		{"first text part", textResp, generative.ModalityChat, "Use a burr grinder.", 42},
		{"no candidates chat", &genai.GenerateContentResponse{}, generative.ModalityChat, FallbackChatText, 0},
		{"no candidates vision", &genai.GenerateContentResponse{}, generative.ModalityVision, FallbackVisionText, 0},
		{"nil response", nil, generative.ModalityChat, FallbackChatText, 0},
		{
			name: "empty text falls back",
			resp: &genai.GenerateContentResponse{
				Candidates:    []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: ""}}}}},
				UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 7},
			},
			modality:   generative.ModalityVision,
			wantText:   FallbackVisionText,
			wantTokens: 7,
		},
		{
			name:     "candidate without content",
			resp:     &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
			modality: generative.ModalityChat,
			wantText: FallbackChatText,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.resp, tt.modality, "gemini-test")
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.TokenCount != tt.wantTokens {
				t.Errorf("TokenCount = %d, want %d", got.TokenCount, tt.wantTokens)
			}
			if got.ModelID != "gemini-test" {
				t.Errorf("ModelID = %q, want gemini-test", got.ModelID)
			}
		})
	}
}
