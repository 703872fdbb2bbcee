package recognition

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/teamalpha/aichef/internal/camera"
	"github.com/teamalpha/aichef/internal/ingredient"
)

// DefaultGeminiModel is a fast multimodal model suited to single-object photos
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini implements the Gateway interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Gateway instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// ClassifyFrame recognizes the ingredient shown in a frame
func (g *Gemini) ClassifyFrame(ctx context.Context, frame camera.Frame) (ingredient.Label, error) {
	pngData, err := encodeFrame(frame)
	if err != nil {
		return "", err
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	return g.generate(ctx, genai.ImageData("png", pngData), genai.Text(frameClassifyPrompt))
}

// ResolveQuery maps a search query to a known ingredient
func (g *Gemini) ResolveQuery(ctx context.Context, query ingredient.Label) (ingredient.Label, error) {
	return g.generate(ctx, genai.Text(queryPrompt(query)))
}

func (g *Gemini) generate(ctx context.Context, parts ...genai.Part) (ingredient.Label, error) {
	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return parseReply(responseText.String())
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
