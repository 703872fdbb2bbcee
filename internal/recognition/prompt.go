package recognition

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/teamalpha/aichef/internal/camera"
	"github.com/teamalpha/aichef/internal/ingredient"
)

// frameClassifyPrompt is the shared prompt used by all providers for camera frames
const frameClassifyPrompt = `You are looking at a single frame from a phone camera pointed at food in a kitchen or a shop.

Identify the ONE raw food ingredient that is most prominent in the frame (for example "tomato", "bell pepper", "red onion", "milk").

Return ONLY valid JSON in this exact format:
{
  "ingredient": "name"
}

Important:
- Use the common English name of the ingredient, lowercase, letters and spaces only
- Do not include brands, quantities or adjectives about freshness
- If no food ingredient is clearly visible, use null for the ingredient
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// queryResolvePrompt is the shared prompt used by all providers for search queries
const queryResolvePrompt = `A user typed the following text into the search box of a shopping list app: %q

Decide whether it names a food ingredient. Correct obvious misspellings and plural forms.

Return ONLY valid JSON in this exact format:
{
  "ingredient": "name"
}

Important:
- Use the common English name of the ingredient, lowercase, letters and spaces only
- If the text does not name a food ingredient, use null for the ingredient
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

func queryPrompt(query ingredient.Label) string {
	return fmt.Sprintf(queryResolvePrompt, query.Display())
}

// encodeFrame encodes the frame as PNG for upload to the model
func encodeFrame(frame camera.Frame) ([]byte, error) {
	if !frame.Valid() {
		return nil, fmt.Errorf("invalid frame %dx%d with %d bytes", frame.Width, frame.Height, len(frame.Pix))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Image()); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
