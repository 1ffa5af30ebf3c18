package info

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	defaultChatModel       = "gpt-4o-mini"
	defaultTranscribeModel = "whisper-1"

	// assistantSystemPrompt keeps replies short enough to speak.
	assistantSystemPrompt = "You are a helpful voice assistant answering a phone caller. " +
		"Reply in at most three short sentences of plain spoken language."
)

// AssistantClient talks to an OpenAI-compatible API for audio
// transcription and chat completion.
type AssistantClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	chatModel  string
	logger     *slog.Logger
}

// NewAssistantClient creates an assistant client. baseURL is the API root,
// e.g. "https://api.openai.com".
func NewAssistantClient(baseURL, apiKey string, logger *slog.Logger) *AssistantClient {
	return &AssistantClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		chatModel:  defaultChatModel,
		logger:     logger.With("subsystem", "assistant"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends the caller's question to the chat model and returns the
// spoken-form reply.
func (c *AssistantClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: assistantSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("assistant: marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("assistant: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assistant: service returned status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("assistant: decoding response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("assistant: empty completion")
	}
	return cr.Choices[0].Message.Content, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads a WAV recording of the caller's speech and returns
// the recognized text.
func (c *AssistantClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "input.wav")
	if err != nil {
		return "", fmt.Errorf("transcribe: building form: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("transcribe: writing audio: %w", err)
	}
	if err := mw.WriteField("model", defaultTranscribeModel); err != nil {
		return "", fmt.Errorf("transcribe: writing field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("transcribe: closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("transcribe: creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("transcribe: service returned status %d: %s", resp.StatusCode, msg)
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("transcribe: decoding response: %w", err)
	}
	return tr.Text, nil
}
