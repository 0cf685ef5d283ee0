// Package ai wraps the generative-AI collaborator: structured field
// extraction from book cover photos and free-text reply generation.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"

	"github.com/AMKLAZ/Bibliotrocs/internal/models"
)

// ErrNoResult is returned when the model produced no usable extraction.
var ErrNoResult = fmt.Errorf("ai: no usable result")

// apologyUnavailable is the fixed reply when the collaborator fails at
// request time.
const apologyUnavailable = "Je suis désolé, une erreur est survenue lors de la tentative de génération de texte. Veuillez réessayer plus tard ou poser une autre question."

// apologyUnconfigured is the fixed reply when no API key is configured.
const apologyUnconfigured = "Je suis désolé, ma configuration interne n'est pas complète pour répondre à cette demande. Veuillez contacter l'administrateur de la plateforme."

// extractBookInfoPrompt instructs the model to answer with bare JSON only,
// using empty strings for fields it cannot read.
const extractBookInfoPrompt = `Vous êtes un assistant IA spécialisé dans l'analyse d'images de couvertures de livres scolaires.
Extrayez les informations suivantes de l'image fournie.
Répondez UNIQUEMENT avec un objet JSON. Ne fournissez aucune explication ou texte supplémentaire avant ou après le JSON.
Si une information n'est pas clairement visible ou identifiable, utilisez une chaîne vide "" comme valeur pour ce champ.

Les champs à extraire sont :
- "title": Le titre complet du livre.
- "classLevel": La classe ou le niveau scolaire (ex: "4ème", "Terminale A", "CM2").
- "publisher": La maison d'édition.
- "editionYear": L'année d'édition au format YYYY (ex: "2021").

Exemple de format JSON attendu :
{
  "title": "Mathématiques CIAM 3ème",
  "classLevel": "3ème",
  "publisher": "EDICEF",
  "editionYear": "2019"
}
`

// Assistant is the AI collaborator consumed by the conversation engine.
type Assistant interface {
	// ExtractBookInfo reads bibliographic fields from a cover photo. It
	// returns ErrNoResult when nothing usable came back.
	ExtractBookInfo(ctx context.Context, image []byte, mimeType string) (*models.ExtractedBookInfo, error)

	// GenerateText answers a free-text prompt. It never fails: collaborator
	// errors degrade to a fixed apology string.
	GenerateText(ctx context.Context, prompt string) string
}

// GeminiClient implements Assistant against the Gemini API.
type GeminiClient struct {
	extractModel *genai.GenerativeModel
	textModel    *genai.GenerativeModel
	tracer       trace.Tracer
}

// NewGeminiClient connects to Gemini with the given API key and model name.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	extractModel := client.GenerativeModel(modelName)
	extractModel.ResponseMIMEType = "application/json"

	textModel := client.GenerativeModel(modelName)

	slog.Info("Gemini client initialized", "model", modelName)

	return &GeminiClient{
		extractModel: extractModel,
		textModel:    textModel,
		tracer:       otel.Tracer("bibliotroc/ai"),
	}, nil
}

// ExtractBookInfo sends the cover photo plus the extraction prompt and
// parses the JSON answer.
func (c *GeminiClient) ExtractBookInfo(ctx context.Context, image []byte, mimeType string) (*models.ExtractedBookInfo, error) {
	ctx, span := c.tracer.Start(ctx, "ai.extract_book_info",
		trace.WithAttributes(attribute.Int("image.bytes", len(image))),
	)
	defer span.End()

	format := strings.TrimPrefix(mimeType, "image/")
	if format == "" || format == mimeType {
		format = "jpeg"
	}

	resp, err := c.extractModel.GenerateContent(ctx,
		genai.ImageData(format, image),
		genai.Text(extractBookInfoPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini image analysis: %w", err)
	}

	text, err := firstTextPart(resp)
	if err != nil {
		return nil, err
	}

	info, err := parseExtractedInfo(text)
	if err != nil {
		slog.Warn("Failed to parse Gemini extraction response", "error", err, "raw", text)
		return nil, ErrNoResult
	}

	span.SetAttributes(attribute.Bool("extraction.empty", info.Empty()))
	return info, nil
}

// GenerateText answers a free-text prompt, degrading to the fixed apology
// string on any failure.
func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) string {
	ctx, span := c.tracer.Start(ctx, "ai.generate_text")
	defer span.End()

	resp, err := c.textModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.Error("Gemini text generation failed", "error", err)
		return apologyUnavailable
	}

	text, err := firstTextPart(resp)
	if err != nil {
		slog.Error("Gemini returned no text candidate", "error", err)
		return apologyUnavailable
	}
	return text
}

// firstTextPart extracts the first text part of the first candidate.
func firstTextPart(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}
	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response part type %T", part)
	}
	return string(text), nil
}

// fenceRegex matches a markdown code fence wrapping the whole payload, with
// an optional language tag.
var fenceRegex = regexp.MustCompile("(?s)^```(?:[a-zA-Z]*)?\\s*\\n?(.*?)\\n?\\s*```$")

// parseExtractedInfo parses the model's JSON answer, tolerating a markdown
// code fence around it.
func parseExtractedInfo(raw string) (*models.ExtractedBookInfo, error) {
	jsonStr := strings.TrimSpace(raw)
	if m := fenceRegex.FindStringSubmatch(jsonStr); m != nil {
		jsonStr = strings.TrimSpace(m[1])
	}

	var info models.ExtractedBookInfo
	if err := json.Unmarshal([]byte(jsonStr), &info); err != nil {
		return nil, fmt.Errorf("parse extraction json: %w", err)
	}
	return &info, nil
}

// DisabledAssistant is the degraded Assistant used when no API key is
// configured at startup: extraction always reports no result and text
// generation returns the fixed apology.
type DisabledAssistant struct{}

// NewDisabledAssistant creates a DisabledAssistant.
func NewDisabledAssistant() *DisabledAssistant {
	slog.Warn("Gemini API key not configured; image analysis and text generation are disabled")
	return &DisabledAssistant{}
}

// ExtractBookInfo always reports no result.
func (d *DisabledAssistant) ExtractBookInfo(ctx context.Context, image []byte, mimeType string) (*models.ExtractedBookInfo, error) {
	return nil, ErrNoResult
}

// GenerateText always returns the unconfigured apology.
func (d *DisabledAssistant) GenerateText(ctx context.Context, prompt string) string {
	return apologyUnconfigured
}
