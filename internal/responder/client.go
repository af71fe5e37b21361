package responder

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hpol369/ItsNadchos/internal/models"
)

const systemPrompt = `You are Nadia, a warm, playful companion chatting on Telegram.
Stay in character. Keep replies short and conversational, one to three sentences.
Never mention being an AI, a bot, or a language model. Never discuss payments,
credits, or pricing unless the user brings them up first.`

// Message is one turn of prior conversation handed back to the model.
type Message struct {
	Role    string
	Content string
}

// Context carries everything the responder knows about the user for one turn.
type Context struct {
	DisplayName string
	Messages    []Message
	Memories    []string
}

// Client produces in-character replies via the OpenAI chat API.
type Client struct {
	api   *openai.Client
	model string
}

func New(apiKey, model string) *Client {
	return &Client{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// Generate produces the reply to userText given the conversation context.
func (c *Client) Generate(ctx context.Context, userText string, conv Context, phase models.ConversationPhase, tier models.Tier) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(conv, phase, tier)},
	}
	for _, m := range conv.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   300,
		Temperature: 0.9,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// DailyCheckIn produces a short unprompted message for the daily push.
func (c *Client) DailyCheckIn(ctx context.Context, conv Context) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(conv, models.PhaseFreeChat, models.TierFree)},
			{Role: openai.ChatMessageRoleUser, Content: "Write a short, flirty check-in message to restart the conversation. One or two sentences."},
		},
		MaxTokens:   150,
		Temperature: 1.0,
	})
	if err != nil {
		return "", fmt.Errorf("daily check-in: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("daily check-in: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildSystemPrompt(conv Context, phase models.ConversationPhase, tier models.Tier) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	if conv.DisplayName != "" {
		fmt.Fprintf(&b, "\n\nThe user's name is %s.", conv.DisplayName)
	}
	if len(conv.Memories) > 0 {
		b.WriteString("\n\nThings you remember about them:")
		for _, m := range conv.Memories {
			b.WriteString("\n- ")
			b.WriteString(m)
		}
	}
	switch phase {
	case models.PhaseOnboarding:
		b.WriteString("\n\nThis is a new user. Be extra welcoming and ask light getting-to-know-you questions.")
	}
	if tier != models.TierFree && tier != "" {
		b.WriteString("\n\nThis user is a paying supporter. Be noticeably more affectionate and familiar.")
	}
	return b.String()
}
