package recognition

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teamalpha/aichef/internal/ingredient"
)

// notFoundReply is the plain-text sentinel some models answer with instead of JSON
const notFoundReply = "NOT FOUND"

type recognitionReply struct {
	Ingredient *string `json:"ingredient"`
}

// parseReply parses the model response into a label, or ErrNotFound
func parseReply(text string) (ingredient.Label, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if strings.EqualFold(text, notFoundReply) {
		return "", ErrNotFound
	}

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var reply recognitionReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return "", fmt.Errorf("unmarshaling json: %w", err)
	}

	if reply.Ingredient == nil {
		return "", ErrNotFound
	}
	name := strings.TrimSpace(*reply.Ingredient)
	if name == "" || strings.EqualFold(name, notFoundReply) {
		return "", ErrNotFound
	}

	label, err := ingredient.ParseLabel(name)
	if err != nil {
		return "", fmt.Errorf("invalid ingredient %q in response: %w", name, err)
	}
	return label, nil
}
