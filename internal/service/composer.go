package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/telemetry"
	"github.com/osteele/liquid"
)

// GeneratedMessage is the generative backend's output for one step.
type GeneratedMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Generator defines the interface to the generative text backend.
type Generator interface {
	GenerateMessage(ctx context.Context, prompt string) (*GeneratedMessage, error)
}

// Retriever defines the consumer-side interface to the knowledge retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) []domain.Snippet
}

// ComposerConfig bounds composition inputs and outputs.
type ComposerConfig struct {
	RetrievalK      int
	MaxContextChars int
	MaxBodyChars    int
}

func DefaultComposerConfig() ComposerConfig {
	return ComposerConfig{
		RetrievalK:      4,
		MaxContextChars: 6000,
		MaxBodyChars:    5000,
	}
}

// defaultPromptTemplate is the Liquid template rendered into the generation
// prompt when a step does not carry its own.
const defaultPromptTemplate = `Write a short, personal outreach email.

Recipient: {{ name }}{% if role != "" %}, {{ role }}{% endif %}{% if organization != "" %} at {{ organization }}{% endif %}.
Goal of this touchpoint: {{ intent }}.
{% if pain_points != "" %}Their known pain points: {{ pain_points }}.
{% endif %}{% if context != "" %}Background material you may draw on:
{{ context }}
{% endif %}Keep it under 150 words, no placeholders, sign off as the sender.`

// ComposerService assembles one message per step: it builds a retrieval
// query from the contact and step intent, bounds the retrieved context,
// renders the prompt, and validates the generated output. Invalid output
// gets one retry with the retrieved context stripped before the failure
// surfaces to the runner.
type ComposerService struct {
	generator Generator
	retriever Retriever
	engine    *liquid.Engine
	cfg       ComposerConfig
}

func NewComposerService(generator Generator, retriever Retriever, cfg ComposerConfig) *ComposerService {
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = DefaultComposerConfig().RetrievalK
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultComposerConfig().MaxContextChars
	}
	if cfg.MaxBodyChars <= 0 {
		cfg.MaxBodyChars = DefaultComposerConfig().MaxBodyChars
	}
	return &ComposerService{
		generator: generator,
		retriever: retriever,
		engine:    liquid.NewEngine(),
		cfg:       cfg,
	}
}

// Compose produces a validated (subject, body) for the given contact and step.
func (s *ComposerService) Compose(ctx context.Context, contact *domain.Contact, step domain.Step, stepIndex int) (*GeneratedMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "ComposerService.Compose", telemetry.SpanAttributes{
		ContactID: contact.ID,
		StepIndex: stepIndex,
		Operation: "compose",
	})
	defer span.End()

	query := s.buildQuery(contact, step)
	snippets := s.retriever.Retrieve(ctx, query, s.cfg.RetrievalK)
	contextText := s.boundContext(snippets)

	prompt, err := s.renderPrompt(contact, step, contextText)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	msg, err := s.generator.GenerateMessage(ctx, prompt)
	if err == nil {
		if vErr := s.validate(msg); vErr == nil {
			return msg, nil
		}
	}

	// One retry with the retrieved context stripped.
	prompt, rErr := s.renderPrompt(contact, step, "")
	if rErr != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", rErr)
	}

	msg, err = s.generator.GenerateMessage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	if err := s.validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *ComposerService) buildQuery(contact *domain.Contact, step domain.Step) string {
	parts := []string{step.Intent}
	if v := contact.Attributes.Get(domain.AttrIndustry); v != "" {
		parts = append(parts, v)
	}
	if v := contact.Attributes.Get(domain.AttrPainPoints); v != "" {
		parts = append(parts, v)
	}
	if contact.Organization != "" {
		parts = append(parts, contact.Organization)
	}
	return strings.Join(parts, " ")
}

// boundContext concatenates snippets best-first up to the configured limit.
func (s *ComposerService) boundContext(snippets []domain.Snippet) string {
	var sb strings.Builder
	for _, snippet := range snippets {
		text := strings.TrimSpace(snippet.Text)
		if text == "" {
			continue
		}
		if sb.Len()+len(text)+2 > s.cfg.MaxContextChars {
			remaining := s.cfg.MaxContextChars - sb.Len() - 2
			// Back off to a rune boundary so the cut never splits a
			// multi-byte character.
			for remaining > 0 && !utf8.RuneStart(text[remaining]) {
				remaining--
			}
			if remaining > 200 {
				sb.WriteString("\n\n")
				sb.WriteString(text[:remaining])
			}
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func (s *ComposerService) renderPrompt(contact *domain.Contact, step domain.Step, contextText string) (string, error) {
	tmpl := step.Prompt
	if tmpl == "" {
		tmpl = defaultPromptTemplate
	}

	bindings := map[string]interface{}{
		"name":         contact.Name,
		"email":        contact.Email,
		"organization": contact.Organization,
		"role":         contact.Role,
		"intent":       step.Intent,
		"context":      contextText,
		"pain_points":  contact.Attributes.Get(domain.AttrPainPoints),
		"industry":     contact.Attributes.Get(domain.AttrIndustry),
		"location":     contact.Attributes.Get(domain.AttrLocation),
	}

	return s.engine.ParseAndRenderString(tmpl, bindings)
}

func (s *ComposerService) validate(msg *GeneratedMessage) error {
	if msg == nil {
		return domain.ErrCompositionInvalid
	}
	if strings.TrimSpace(msg.Subject) == "" || strings.TrimSpace(msg.Body) == "" {
		return domain.ErrCompositionInvalid
	}
	if len(msg.Body) > s.cfg.MaxBodyChars {
		return domain.ErrCompositionInvalid
	}
	return nil
}
