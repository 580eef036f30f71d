package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

// Extractor fills Go structs from documents using JSON schema structured output.
type Extractor struct {
	client *Client
	model  string
}

// NewSplitExtractor uses the split model, the larger of the two.
func NewSplitExtractor(client *Client) *Extractor {
	return &Extractor{client: client, model: client.splitModel}
}

func NewScoreExtractor(client *Client) *Extractor {
	return &Extractor{client: client, model: client.scoreModel}
}

func (e *Extractor) Extract(ctx context.Context, instruction, document string, target any) error {
	value := reflect.ValueOf(target)
	if value.Kind() != reflect.Pointer || value.IsNil() {
		return fmt.Errorf("extract: target must be a non-nil pointer, got %T", target)
	}
	schema, err := jsonschema.GenerateSchemaForType(value.Elem().Interface())
	if err != nil {
		return fmt.Errorf("extract: build schema: %w", err)
	}

	resp, err := call(ctx, e.client, "extract", true, func(ctx context.Context) (goopenai.ChatCompletionResponse, error) {
		return e.client.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
			Model: e.model,
			Messages: []goopenai.ChatCompletionMessage{
				{Role: goopenai.ChatMessageRoleSystem, Content: buildExtractionSystemPrompt(instruction)},
				{Role: goopenai.ChatMessageRoleUser, Content: document},
			},
			ResponseFormat: &goopenai.ChatCompletionResponseFormat{
				Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
					Name:   schemaName(value.Elem().Type()),
					Schema: schema,
					Strict: true,
				},
			},
			Temperature: 0.1,
		})
	})
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return domain.WrapError(domain.ErrGrading, "extract", errors.New("model returned no choices"))
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return domain.WrapError(domain.ErrGrading, "extract", fmt.Errorf("model refused: %s", choice.Message.Refusal))
	}
	raw := extractJSONObject(choice.Message.Content)
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return domain.WrapError(domain.ErrGrading, "extract", fmt.Errorf("parse structured output: %w", err))
	}
	return nil
}

var schemaNameInvalid = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func schemaName(t reflect.Type) string {
	name := schemaNameInvalid.ReplaceAllString(t.Name(), "_")
	if name == "" {
		return "extraction"
	}
	return name
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
