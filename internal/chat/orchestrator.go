package chat

import (
	"context"
	"log"
	"strings"

	"sparkchat/internal/conversation"
	"sparkchat/internal/models"
	"sparkchat/internal/personality"
	"sparkchat/internal/prompt"
	"sparkchat/internal/provider"
)

// Raw provider errors never reach the user; a failed turn gets a fixed
// apology instead.
const (
	textApology   = "Sorry, I encountered an error. Please try again in a moment."
	visionApology = "Sorry, I could not analyze that image just now. Please try another image or resend it."
)

// imagePlaceholder stands in for an image-only turn in the stored log.
const imagePlaceholder = "📷 Shared an image"

// TextProvider runs single requests against one named backend.
type TextProvider interface {
	GenerateText(ctx context.Context, providerID, prompt string) (string, error)
	AnalyzeImage(ctx context.Context, providerID, prompt string, image []byte, mimeType string) (string, error)
}

// TurnInput is one incoming user turn. Image, when set, switches the turn
// to vision mode.
type TurnInput struct {
	UserID        int64
	PersonalityID string
	Content       string
	Image         []byte
	ImageMime     string
}

// TurnResult is both persisted messages of a completed turn. Failed marks
// turns whose assistant message is an apology rather than a model reply.
type TurnResult struct {
	UserMessage      models.Message `json:"user_message"`
	AssistantMessage models.Message `json:"assistant_message"`
	Provider         string         `json:"provider,omitempty"`
	Failed           bool           `json:"failed"`
}

// Orchestrator runs chat turns: persist the user message, assemble the
// prompt, walk the provider queue, persist the reply.
type Orchestrator struct {
	store       *conversation.Store
	catalog     *personality.Catalog
	builder     *prompt.Builder
	provider    TextProvider
	textQueue   []string
	visionQueue []string
}

func NewOrchestrator(store *conversation.Store, catalog *personality.Catalog, builder *prompt.Builder, tp TextProvider, textQueue, visionQueue []string) *Orchestrator {
	return &Orchestrator{
		store:       store,
		catalog:     catalog,
		builder:     builder,
		provider:    tp,
		textQueue:   textQueue,
		visionQueue: visionQueue,
	}
}

// HandleTurn processes one user turn end to end. Both the user message and
// the assistant reply are persisted even when every provider fails, so the
// log always reflects what the user saw.
func (o *Orchestrator) HandleTurn(ctx context.Context, input TurnInput) (*TurnResult, error) {
	p := o.catalog.ByID(input.PersonalityID)
	hasImage := len(input.Image) > 0

	// Image turns are stored behind a marker so they never re-enter the
	// model context; the image bytes are not kept.
	stored := input.Content
	if hasImage {
		if strings.TrimSpace(stored) == "" {
			stored = imagePlaceholder
		} else {
			stored = "📷 " + stored
		}
	}

	userMsg := models.Message{
		UserID:        input.UserID,
		PersonalityID: p.ID,
		Role:          models.RoleUser,
		Content:       stored,
	}
	if err := o.store.Append(ctx, &userMsg); err != nil {
		return nil, err
	}

	history, err := o.store.Window(ctx, input.UserID, p.ID, userMsg.ID)
	if err != nil {
		return nil, err
	}

	var (
		queue   []string
		usable  = func(s string) bool { return strings.TrimSpace(s) != "" }
		attempt provider.AttemptFn[string]
	)
	if hasImage {
		queue = o.visionQueue
		full := o.builder.BuildVision(p, history, input.Content)
		attempt = func(ctx context.Context, providerID string) (string, error) {
			return o.provider.AnalyzeImage(ctx, providerID, full, input.Image, input.ImageMime)
		}
	} else {
		queue = o.textQueue
		full := o.builder.Build(p, history, input.Content)
		attempt = func(ctx context.Context, providerID string) (string, error) {
			return o.provider.GenerateText(ctx, providerID, full)
		}
	}

	reply, winner, err := provider.RunFallback(ctx, queue, usable, attempt)
	failed := err != nil
	if failed {
		log.Printf("turn failed for user %d personality %s: %v", input.UserID, p.ID, err)
		if hasImage {
			reply = visionApology
		} else {
			reply = textApology
		}
	}

	assistantMsg := models.Message{
		UserID:        input.UserID,
		PersonalityID: p.ID,
		Role:          models.RoleAssistant,
		Content:       reply,
	}
	if err := o.store.Append(ctx, &assistantMsg); err != nil {
		return nil, err
	}

	return &TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Provider:         winner,
		Failed:           failed,
	}, nil
}
