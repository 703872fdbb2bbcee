package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teamalpha/aichef/internal/camera"
	"github.com/teamalpha/aichef/internal/ingredient"
)

const ollamaSystemPrompt = "You are an expert grocer. You identify food ingredients in photos and in short search queries, and you answer only with the requested JSON."

// Ollama implements the Gateway interface using Ollama
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama Gateway instance.
// Vision models such as llava or qwen2-vl are needed for frame classification.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			// callers bound each request with their own context
			Timeout: 120 * time.Second,
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// ClassifyFrame recognizes the ingredient shown in a frame
func (o *Ollama) ClassifyFrame(ctx context.Context, frame camera.Frame) (ingredient.Label, error) {
	pngData, err := encodeFrame(frame)
	if err != nil {
		return "", err
	}

	return o.chat(ctx, ollamaMessage{
		Role:    "user",
		Content: frameClassifyPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
	})
}

// ResolveQuery maps a search query to a known ingredient
func (o *Ollama) ResolveQuery(ctx context.Context, query ingredient.Label) (ingredient.Label, error) {
	return o.chat(ctx, ollamaMessage{
		Role:    "user",
		Content: queryPrompt(query),
	})
}

func (o *Ollama) chat(ctx context.Context, msg ollamaMessage) (ingredient.Label, error) {
	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{Role: "system", Content: ollamaSystemPrompt},
			msg,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return parseReply(chatResp.Message.Content)
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
