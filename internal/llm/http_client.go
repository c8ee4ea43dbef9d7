package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// HTTPClient implementa LLMClient contra una API OpenAI-compatible usando
// chat completions con stream habilitado.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient construye un cliente apuntando a la API de chat completions.
// El http.Client no lleva timeout global: la respuesta es un stream de
// duración abierta y la cancelación viaja por el contexto del request.
func NewHTTPClient(baseURL, apiKey, model string, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{},
		logger:  logger,
	}
}

func (c *HTTPClient) StreamChat(ctx context.Context, history []Turn, prompt string) (<-chan Chunk, error) {
	messages := make([]chatMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, chatMessage{
			Role:    providerRole(turn.Role),
			Content: turn.Text,
		})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Warn("llm error response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return nil, fmt.Errorf("llm http error: status=%d", resp.StatusCode)
	}

	chunks := make(chan Chunk)
	go c.readStream(ctx, resp.Body, chunks)
	return chunks, nil
}

// readStream consume las líneas SSE del proveedor y las publica como Chunks.
// Cierra el canal al terminar, sea por [DONE], error o cancelación.
func (c *HTTPClient) readStream(ctx context.Context, body io.ReadCloser, chunks chan<- Chunk) {
	defer close(chunks)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			if payload == "[DONE]" {
				return
			}
			continue
		}

		var sc streamChunk
		if err := json.Unmarshal([]byte(payload), &sc); err != nil {
			c.sendChunk(ctx, chunks, Chunk{Err: fmt.Errorf("unmarshal chunk: %w", err)})
			return
		}
		if sc.Error != nil {
			c.sendChunk(ctx, chunks, Chunk{Err: fmt.Errorf("llm api error: %s", sc.Error.Message)})
			return
		}
		if len(sc.Choices) == 0 {
			continue
		}
		if text := sc.Choices[0].Delta.Content; text != "" {
			if !c.sendChunk(ctx, chunks, Chunk{Text: text}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.sendChunk(ctx, chunks, Chunk{Err: fmt.Errorf("read stream: %w", err)})
	}
}

func (c *HTTPClient) sendChunk(ctx context.Context, chunks chan<- Chunk, chunk Chunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// providerRole traduce los roles del dominio al vocabulario del proveedor.
func providerRole(role string) string {
	if role == "model" {
		return "assistant"
	}
	return "user"
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
