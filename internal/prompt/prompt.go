// Package prompt assembles outbound model requests from conversation history,
// an optional base instruction and retrieved reference passages.
//
// Everything here is a pure transform: no I/O and no failure modes other than
// malformed caller input, which [ParseMessages] reports.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/baristagate/pkg/provider/generative"
	"github.com/MrWong99/baristagate/pkg/types"
)

const (
	// ReferencePreamble opens the reference-data block of the system
	// instruction.
	ReferencePreamble = "The following reference data comes from our curated coffee knowledge base. " +
		"When it offers specific guidance for the user's question, prefer it over general knowledge. " +
		"Answer conversationally in your own words; do not quote the reference data verbatim.\n\n" +
		"--- REFERENCE DATA ---"

	// ReferenceClosing closes the reference-data block.
	ReferenceClosing = "--- END REFERENCE DATA ---"

	// ImageMIMEType tags inline images sent for vision analysis.
	ImageMIMEType = "image/jpeg"
)

// ChatParams are the sampling parameters for text conversations.
func ChatParams() generative.Params {
	topP := float32(0.95)
	return generative.Params{Temperature: 0.7, MaxOutputTokens: 1024, TopP: &topP}
}

// VisionParams are the sampling parameters for image analysis. TopP is left
// at the model default.
func VisionParams() generative.Params {
	return generative.Params{Temperature: 0.4, MaxOutputTokens: 512}
}

// ParseMessages decodes caller-supplied JSON-encoded messages, preserving
// order. The error names the index of the first malformed entry.
func ParseMessages(raw []string) ([]types.Message, error) {
	msgs := make([]types.Message, 0, len(raw))
	for i, s := range raw {
		var m types.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("prompt: message %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// LastUserMessage returns the content of the most recent user message, or ""
// when there is none.
func LastUserMessage(msgs []types.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// Assemble builds a chat request. Turns keep input order; "assistant" maps to
// the model role and every other role to the user role. The system
// instruction is baseInstruction followed by the formatted passages and is
// never merged into the turns.
func Assemble(msgs []types.Message, baseInstruction string, passages []types.Passage) generative.Request {
	contents := make([]generative.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := generative.RoleUser
		if m.Role == types.RoleAssistant {
			role = generative.RoleModel
		}
		contents = append(contents, generative.Turn{
			Role:  role,
			Parts: []generative.Part{{Text: m.Content}},
		})
	}

	return generative.Request{
		Modality:          generative.ModalityChat,
		Contents:          contents,
		SystemInstruction: SystemInstruction(baseInstruction, passages),
		Params:            ChatParams(),
	}
}

// AssembleVision builds a single-turn image analysis request: the prompt
// text followed by the inline JPEG image.
func AssembleVision(promptText string, image []byte) generative.Request {
	return generative.Request{
		Modality: generative.ModalityVision,
		Contents: []generative.Turn{{
			Role: generative.RoleUser,
			Parts: []generative.Part{
				{Text: promptText},
				{InlineData: &generative.Blob{MIMEType: ImageMIMEType, Data: image}},
			},
		}},
		Params: VisionParams(),
	}
}

// SystemInstruction joins base and the reference block with a blank line.
// Either may be absent; the result is empty when both are.
func SystemInstruction(base string, passages []types.Passage) string {
	block := FormatPassages(passages)
	switch {
	case base == "":
		return block
	case block == "":
		return base
	default:
		return base + "\n\n" + block
	}
}

// FormatPassages renders passages as the framed reference block. It returns
// "" for no passages.
func FormatPassages(passages []types.Passage) string {
	if len(passages) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		header := "[" + p.SourceLabel + "]"
		if p.RelevanceScore != nil {
			header += fmt.Sprintf(" (relevance: %.2f)", *p.RelevanceScore)
		}
		blocks = append(blocks, header+"\n"+p.Text)
	}

	var b strings.Builder
	b.WriteString(ReferencePreamble)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\n")
	b.WriteString(ReferenceClosing)
	return b.String()
}
