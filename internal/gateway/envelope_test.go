package gateway

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEnvelope_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
		wantArgs  string
	}{
		{
			name:      "resolver shape",
			body:      `{"info":{"fieldName":"geminiChat","parentTypeName":"Mutation"},"arguments":{"messages":["{}"]}}`,
			wantField: OpChat,
			wantArgs:  `{"messages":["{}"]}`,
		},
		{
			name:      "flat shape uses whole event as arguments",
			body:      `{"fieldName":"geminiVision","imageBase64":"aGk="}`,
			wantField: OpVision,
			wantArgs:  `{"fieldName":"geminiVision","imageBase64":"aGk="}`,
		},
		{
			name:      "info wins over top-level field",
			body:      `{"fieldName":"geminiVision","info":{"fieldName":"geminiChat"},"arguments":{}}`,
			wantField: OpChat,
			wantArgs:  `{}`,
		},
		{
			name:      "null arguments fall back to event",
			body:      `{"fieldName":"geminiChat","arguments":null}`,
			wantField: OpChat,
			wantArgs:  `{"fieldName":"geminiChat","arguments":null}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			if err := json.Unmarshal([]byte(tt.body), &env); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if env.FieldName != tt.wantField {
				t.Errorf("FieldName = %q, want %q", env.FieldName, tt.wantField)
			}
			if string(env.Arguments) != tt.wantArgs {
				t.Errorf("Arguments = %s, want %s", env.Arguments, tt.wantArgs)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Run("chat", func(t *testing.T) {
		op, err := Resolve(Envelope{
			FieldName: OpChat,
			Arguments: json.RawMessage(`{"messages":["{\"role\":\"user\",\"content\":\"hi\"}"],"systemPrompt":"Be brief."}`),
		})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		chat, ok := op.(ChatOperation)
		if !ok {
			t.Fatalf("op = %T, want ChatOperation", op)
		}
		if len(chat.Messages) != 1 || chat.SystemPrompt != "Be brief." {
			t.Errorf("chat = %+v", chat)
		}
	})

	t.Run("vision", func(t *testing.T) {
		op, err := Resolve(Envelope{FieldName: OpVision, Arguments: json.RawMessage(`{"imageBase64":"aGk="}`)})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if v, ok := op.(VisionOperation); !ok || v.ImageBase64 != "aGk=" || v.Prompt != "" {
			t.Errorf("op = %#v", op)
		}
	})

	t.Run("chat without messages", func(t *testing.T) {
		_, err := Resolve(Envelope{FieldName: OpChat, Arguments: json.RawMessage(`{}`)})
		if !errors.Is(err, ErrInvalidArguments) {
			t.Errorf("err = %v, want ErrInvalidArguments", err)
		}
	})

	t.Run("vision without image", func(t *testing.T) {
		_, err := Resolve(Envelope{FieldName: OpVision, Arguments: json.RawMessage(`{"prompt":"what?"}`)})
		if !errors.Is(err, ErrMissingImage) {
			t.Errorf("err = %v, want ErrMissingImage", err)
		}
	})

	t.Run("malformed arguments", func(t *testing.T) {
		_, err := Resolve(Envelope{FieldName: OpChat, Arguments: json.RawMessage(`{"messages":"not-a-list"}`)})
		if !errors.Is(err, ErrInvalidArguments) {
			t.Errorf("err = %v, want ErrInvalidArguments", err)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Resolve(Envelope{FieldName: "unknown"})
		var nf *OperationNotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("err = %v, want *OperationNotFoundError", err)
		}
		if nf.Name != "unknown" {
			t.Errorf("Name = %q, want unknown", nf.Name)
		}
		if len(nf.Known) != 2 || nf.Known[0] != OpChat || nf.Known[1] != OpVision {
			t.Errorf("Known = %v, want [geminiChat geminiVision]", nf.Known)
		}
	})
}
