package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/oneyeking31/local-explorer/apikeys"
	"github.com/oneyeking31/local-explorer/httpclient"
)

const (
	systemPrompt = "You are a helpful assistant."
	maxTokens    = 150
	temperature  = 0.7
)

// SuggestionPrompt asks for one activity that suits the weather
func SuggestionPrompt(w CurrentWeather) string {
	return fmt.Sprintf("Suggest one fun outdoor activity for someone in a location with a temperature of %s°C and %s weather at %s. "+
		"Make the suggestion unique and weather-appropriate. "+
		"Also, extract keywords for the suggestion that can be used to search for nearby places.",
		strconv.FormatFloat(w.Temperature, 'f', -1, 64), w.Condition, w.Time)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	N           int           `json:"n"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// ChatClient calls an OpenAI-compatible chat completions endpoint
type ChatClient struct {
	url      string
	model    string
	http     *httpclient.HTTPClientWithRetries
	keys     apikeys.IAPIKeyManager
	onFailed apikeys.OnFailedCallback
}

func NewChatClient(url, model string, client *httpclient.HTTPClientWithRetries, keys apikeys.IAPIKeyManager, onFailed apikeys.OnFailedCallback) *ChatClient {
	return &ChatClient{url: url, model: model, http: client, keys: keys, onFailed: onFailed}
}

// Complete sends one user prompt and returns the trimmed reply
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		N:           1,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	keys := c.keys.GetAvailableKeys(apikeys.OpenAIKey)
	return apikeys.TryWithKeys(ctx, keys, "openai", func(ctx context.Context, key apikeys.APIKey) (string, bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return "", false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+key.Key)

		_, body, _, err := c.http.ExecuteRequest(req)
		if err != nil {
			return "", false, err
		}

		var resp chatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", false, fmt.Errorf("%w: failed to decode completion: %v", errUpstream, err)
		}
		if len(resp.Choices) == 0 {
			return "", false, fmt.Errorf("%w: completion has no choices", errUpstream)
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), true, nil
	}, c.onFailed)
}
