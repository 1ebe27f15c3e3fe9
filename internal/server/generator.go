package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// cardGenerator is the content-generation collaborator. The room session
// treats it as fallible and slow: every call carries a context deadline.
type cardGenerator interface {
	ResponseCards(ctx context.Context, topicPrompt, personalityPrompt string, count int) ([]string, error)
	ThemeCard(ctx context.Context, topicPrompt, personalityPrompt string) (string, error)
}

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

type geminiGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func newGeminiGenerator(apiKey, model, baseURL string, timeout time.Duration) *geminiGenerator {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &geminiGenerator{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	TopP             float64 `json:"topP,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// cardBatch is the structured JSON the model is asked to return.
type cardBatch struct {
	Cards []struct {
		Text string `json:"text"`
	} `json:"cards"`
}

func (g *geminiGenerator) ResponseCards(ctx context.Context, topicPrompt, personalityPrompt string, count int) ([]string, error) {
	prompt := fmt.Sprintf(
		"%s\n\nTopic: %s\n\nGenerate %d short response cards for a fill-in-the-blank party card game. "+
			`Answer with JSON of the form {"cards":[{"text":"..."}]}.`,
		personalityPrompt, topicPrompt, count)
	texts, err := g.generateBatch(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, errors.New("content service returned an empty batch")
	}
	return texts, nil
}

func (g *geminiGenerator) ThemeCard(ctx context.Context, topicPrompt, personalityPrompt string) (string, error) {
	prompt := fmt.Sprintf(
		"%s\n\nTopic: %s\n\nGenerate 1 theme card for a fill-in-the-blank party card game. "+
			"The text must contain at least one blank written exactly as %q. "+
			`Answer with JSON of the form {"cards":[{"text":"..."}]}.`,
		personalityPrompt, topicPrompt, blankMarker)
	texts, err := g.generateBatch(ctx, prompt)
	if err != nil {
		return "", err
	}
	if len(texts) == 0 {
		return "", errors.New("content service returned no theme card")
	}
	return texts[0], nil
}

func (g *geminiGenerator) generateBatch(ctx context.Context, prompt string) ([]string, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      1.0,
			TopP:             0.95,
			ResponseMimeType: "application/json",
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request")
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach content service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content service response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("content service request failed (%d)", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse content service response")
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("content service error: %s", parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("content service returned no candidates")
	}

	return parseCardBatch(parsed.Candidates[0].Content.Parts[0].Text)
}

func parseCardBatch(raw string) ([]string, error) {
	var batch cardBatch
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &batch); err != nil {
		return nil, fmt.Errorf("content service returned malformed card JSON")
	}
	unique := make(map[string]struct{}, len(batch.Cards))
	out := make([]string, 0, len(batch.Cards))
	for _, card := range batch.Cards {
		text := normalizeText(card.Text)
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if _, exists := unique[key]; exists {
			continue
		}
		unique[key] = struct{}{}
		out = append(out, text)
	}
	return out, nil
}
