package gateway

import (
	"google.golang.org/genai"

	"github.com/MrWong99/baristagate/pkg/provider/generative"
	"github.com/MrWong99/baristagate/pkg/types"
)

// Fallback texts used when the model produced no text.
const (
	FallbackChatText   = "No response generated"
	FallbackVisionText = "Could not analyze image"
)

// Normalize turns a raw model response into a [types.Result]. It never
// fails: a missing candidate or empty text yields the modality's fallback
// text, and missing usage metadata yields a token count of 0.
func Normalize(resp *genai.GenerateContentResponse, modality generative.Modality, modelID string) types.Result {
	res := types.Result{Text: firstText(resp), ModelID: modelID}
	if res.Text == "" {
		res.Text = FallbackChatText
		if modality == generative.ModalityVision {
			res.Text = FallbackVisionText
		}
	}
	if resp != nil && resp.UsageMetadata != nil {
		res.TokenCount = int(resp.UsageMetadata.TotalTokenCount)
	}
	return res
}

// firstText returns the text of the first part of the first candidate.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil || len(c.Content.Parts) == 0 || c.Content.Parts[0] == nil {
		return ""
	}
	return c.Content.Parts[0].Text
}
