// Package annotate produces best-effort analysis notes for newly created tickets.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/spec-kit/alertbridge/internal/config"
)

// NoteHeader starts every analysis note appended to a ticket.
const NoteHeader = "--- AUTOMATED ANALYSIS ---"

// DefaultInstructions is used when an endpoint enables annotation without its own instructions.
const DefaultInstructions = "Analyze this technical alert and suggest 3 possible root causes and 3 troubleshooting steps. Be concise and technical."

// Annotator analyses an alert payload.
type Annotator interface {
	Analyze(ctx context.Context, payload, instructions string) (string, error)
}

// Func adapts a function to Annotator.
type Func func(ctx context.Context, payload, instructions string) (string, error)

func (f Func) Analyze(ctx context.Context, payload, instructions string) (string, error) {
	return f(ctx, payload, instructions)
}

// Gemini calls the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds the client from configuration.
func NewGemini(ctx context.Context, cfg config.AnnotatorConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

func (g *Gemini) Analyze(ctx context.Context, payload, instructions string) (string, error) {
	res, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(Prompt(payload)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(Instructions(instructions), genai.RoleUser),
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", errors.New("empty analysis")
	}
	return text, nil
}

// Instructions falls back to DefaultInstructions.
func Instructions(custom string) string {
	if s := strings.TrimSpace(custom); s != "" {
		return s
	}
	return DefaultInstructions
}

// Prompt wraps the masked payload for the model.
func Prompt(payload string) string {
	return "Alert payload (JSON):\n" + payload
}

// Note formats the analysis as a ticket note.
func Note(analysis string) string {
	return NoteHeader + "\n\n" + strings.TrimSpace(analysis)
}
