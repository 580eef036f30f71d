package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

// Grader runs rubric assistants on isolated threads.
type Grader struct {
	client *Client
}

func NewGrader(client *Client) *Grader {
	return &Grader{client: client}
}

func (g *Grader) CreateSession(ctx context.Context, _ string) (string, error) {
	thread, err := call(ctx, g.client, "create_thread", true, func(ctx context.Context) (goopenai.Thread, error) {
		return g.client.api.CreateThread(ctx, goopenai.ThreadRequest{})
	})
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

// Submit posts text on the thread and starts a run of the rubric assistant.
func (g *Grader) Submit(ctx context.Context, sessionID, rubricID, text string) (string, error) {
	if strings.TrimSpace(rubricID) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "openai submit", errors.New("assistant id is empty"))
	}
	_, err := call(ctx, g.client, "create_message", false, func(ctx context.Context) (goopenai.Message, error) {
		return g.client.api.CreateMessage(ctx, sessionID, goopenai.MessageRequest{
			Role:    goopenai.ChatMessageRoleUser,
			Content: text,
		})
	})
	if err != nil {
		return "", err
	}
	run, err := call(ctx, g.client, "create_run", false, func(ctx context.Context) (goopenai.Run, error) {
		return g.client.api.CreateRun(ctx, sessionID, goopenai.RunRequest{AssistantID: rubricID})
	})
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

func (g *Grader) RunStatus(ctx context.Context, sessionID, runID string) (domain.RunStatus, error) {
	run, err := call(ctx, g.client, "retrieve_run", true, func(ctx context.Context) (goopenai.Run, error) {
		return g.client.api.RetrieveRun(ctx, sessionID, runID)
	})
	if err != nil {
		return "", err
	}
	return mapRunStatus(run.Status), nil
}

// Reply returns the text of the newest assistant message on the thread.
func (g *Grader) Reply(ctx context.Context, sessionID string) (string, error) {
	limit := 20
	order := "desc"
	list, err := call(ctx, g.client, "list_messages", true, func(ctx context.Context) (goopenai.MessagesList, error) {
		return g.client.api.ListMessage(ctx, sessionID, &limit, &order, nil, nil, nil)
	})
	if err != nil {
		return "", err
	}
	for _, msg := range list.Messages {
		if msg.Role != goopenai.ChatMessageRoleAssistant {
			continue
		}
		if text := messageText(msg); text != "" {
			return text, nil
		}
	}
	return "", domain.WrapError(domain.ErrGrading, "openai reply", fmt.Errorf("no assistant message on thread %s", sessionID))
}

func (g *Grader) CloseSession(ctx context.Context, sessionID string) error {
	_, err := call(ctx, g.client, "delete_thread", true, func(ctx context.Context) (goopenai.ThreadDeleteResponse, error) {
		return g.client.api.DeleteThread(ctx, sessionID)
	})
	return err
}

func messageText(msg goopenai.Message) string {
	parts := make([]string, 0, len(msg.Content))
	for _, content := range msg.Content {
		if content.Text != nil && strings.TrimSpace(content.Text.Value) != "" {
			parts = append(parts, content.Text.Value)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func mapRunStatus(status goopenai.RunStatus) domain.RunStatus {
	switch status {
	case goopenai.RunStatusCompleted:
		return domain.RunCompleted
	case goopenai.RunStatusQueued:
		return domain.RunQueued
	case goopenai.RunStatusFailed, goopenai.RunStatusIncomplete, goopenai.RunStatusRequiresAction:
		return domain.RunFailed
	case goopenai.RunStatusCancelled:
		return domain.RunCancelled
	case goopenai.RunStatusExpired:
		return domain.RunExpired
	default:
		return domain.RunInProgress
	}
}
