package httpapi

import (
	"context"
	"log"
	"strings"
	"time"

	"nimbuschat/backend/internal/openrouter"
	"nimbuschat/backend/internal/prompt"
	"nimbuschat/backend/internal/store"
	"nimbuschat/backend/internal/stream"
	"nimbuschat/backend/internal/uimsg"
)

const (
	generationCleanupTimeout = 10 * time.Second
	generatedTitleMaxRunes   = 60
)

// runGeneration is the background worker behind send and regenerate. It
// streams the completion into the message's response stream, then persists
// the final content and flips the chat status. Every terminal path leaves
// the stream finalized so readers never tail a dead stream.
func (h Handler) runGeneration(user store.User, chat store.Chat, message store.Message, model store.Model) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.GenerateTimeout())
	defer cancel()

	conversation, err := h.buildConversation(ctx, user, chat, message)
	if err != nil {
		h.failGeneration(chat, message, err)
		return
	}

	var raw strings.Builder
	var usage openrouter.Usage

	err = h.llm.StreamChatCompletion(ctx, openrouter.StreamRequest{
		Model:    model.Model,
		Messages: conversation,
	},
		func() error {
			return h.store.SetChatStatus(ctx, chat.ID, store.ChatStatusStreaming)
		},
		func(delta string) error {
			raw.WriteString(delta)
			return h.store.AppendStreamChunk(ctx, message.ResponseStreamID, delta)
		},
		func(u openrouter.Usage) error {
			usage = u
			return nil
		},
	)
	if err != nil {
		h.failGeneration(chat, message, err)
		return
	}

	parts := stream.Parse(raw.String(), true)
	messages := []uimsg.UIMessage{{ID: message.ID, Role: "assistant", Parts: parts}}
	encoded, err := uimsg.Encode(messages)
	if err != nil {
		h.failGeneration(chat, message, err)
		return
	}

	content := uimsg.CopyText(messages)
	credits := model.Cost
	if credits < 0 {
		credits = 0
	}

	if _, err := h.store.CompleteMessage(ctx, message.ID, store.MessageCompletion{
		UIMessages:    encoded,
		Content:       content,
		SearchContent: strings.TrimSpace(message.Prompt + " " + uimsg.SearchText(messages)),
		Usage: store.MessageUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
		CreditsSpent: credits,
	}); err != nil {
		h.failGeneration(chat, message, err)
		return
	}

	if err := h.store.FinishStream(ctx, message.ResponseStreamID, store.StreamStatusDone); err != nil {
		log.Printf("finish stream failed: stream_id=%s err=%v", message.ResponseStreamID, err)
	}
	if err := h.store.SetChatStatus(ctx, chat.ID, store.ChatStatusCompleted); err != nil {
		log.Printf("complete chat status failed: chat_id=%s err=%v", chat.ID, err)
	}
	if err := h.store.TouchChat(ctx, chat.ID); err != nil {
		log.Printf("touch chat failed: chat_id=%s err=%v", chat.ID, err)
	}
	if credits > 0 {
		if err := h.store.AddCreditsUsed(ctx, user.ID, credits); err != nil {
			log.Printf("record credits failed: user_id=%s err=%v", user.ID, err)
		}
	}
	h.maybeTitleChat(ctx, user, chat, message)

	log.Printf("generation completed: chat_id=%s message_id=%s model=%s tokens=%d", chat.ID, message.ID, model.Model, usage.TotalTokens)
}

// buildConversation assembles the system prompt plus the chat history up to
// and including the triggering message's prompt.
func (h Handler) buildConversation(ctx context.Context, user store.User, chat store.Chat, message store.Message) ([]openrouter.Message, error) {
	var activeTools []string
	if message.Tool != "" {
		activeTools = []string{message.Tool}
	}

	system := prompt.General(prompt.Preferences{
		Nickname:     user.Preferences.Nickname,
		Biography:    user.Preferences.Biography,
		Instructions: user.Preferences.Instructions,
	}, activeTools)

	history, err := h.store.ListMessagesByChat(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	conversation := make([]openrouter.Message, 0, len(history)*2+2)
	conversation = append(conversation, openrouter.Message{Role: "system", Content: system})
	for _, previous := range history {
		if previous.ID == message.ID {
			continue
		}
		if previous.Prompt != "" {
			conversation = append(conversation, openrouter.Message{Role: "user", Content: previous.Prompt})
		}
		if previous.Content != "" {
			conversation = append(conversation, openrouter.Message{Role: "assistant", Content: previous.Content})
		}
	}
	conversation = append(conversation, openrouter.Message{Role: "user", Content: message.Prompt})
	return conversation, nil
}

func (h Handler) failGeneration(chat store.Chat, message store.Message, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), generationCleanupTimeout)
	defer cancel()

	log.Printf("generation failed: chat_id=%s message_id=%s err=%v", chat.ID, message.ID, cause)

	if _, err := h.store.CompleteMessage(ctx, message.ID, store.MessageCompletion{
		Error: cause.Error(),
	}); err != nil {
		log.Printf("persist generation error failed: message_id=%s err=%v", message.ID, err)
	}
	if err := h.store.FinishStream(ctx, message.ResponseStreamID, store.StreamStatusError); err != nil {
		log.Printf("finish stream failed: stream_id=%s err=%v", message.ResponseStreamID, err)
	}
	if err := h.store.SetChatStatus(ctx, chat.ID, store.ChatStatusError); err != nil {
		log.Printf("error chat status failed: chat_id=%s err=%v", chat.ID, err)
	}
}

// maybeTitleChat gives a fresh chat a title derived from its first prompt.
func (h Handler) maybeTitleChat(ctx context.Context, user store.User, chat store.Chat, message store.Message) {
	if chat.Title != "" && chat.Title != store.DefaultChatTitle {
		return
	}

	title := strings.TrimSpace(message.Prompt)
	title = strings.ReplaceAll(title, "\n", " ")
	runes := []rune(title)
	if len(runes) > generatedTitleMaxRunes {
		title = strings.TrimSpace(string(runes[:generatedTitleMaxRunes]))
	}
	if title == "" {
		return
	}

	if err := h.store.RenameChat(ctx, chat.ID, user.ID, title); err != nil {
		log.Printf("title chat failed: chat_id=%s err=%v", chat.ID, err)
	}
}
