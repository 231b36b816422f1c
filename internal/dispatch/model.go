package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelConfig — подключение к OpenAI-совместимому сервису моделей.
type ModelConfig struct {
	// BaseURL — адрес сервиса.
	BaseURL string

	// Token — API-токен. "none" для локальных сервисов без авторизации.
	Token string

	// EmbeddingModel — модель для model_embed узлов.
	EmbeddingModel string

	// CompletionModel — модель для model_complete узлов.
	CompletionModel string
}

// EmbedAction выполняет model_embed узлы: отрендеренная инструкция
// отправляется embedding-модели, вектор кладётся в единственное
// выходное поле узла.
type EmbedAction struct {
	embedder embeddings.Embedder
}

// NewEmbedAction создаёт EmbedAction поверх OpenAI-совместимого API.
func NewEmbedAction(cfg ModelConfig) (*EmbedAction, error) {
	token := cfg.Token
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("new embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("new embedder: %w", err)
	}

	return &EmbedAction{embedder: embedder}, nil
}

// Execute отправляет инструкцию embedding-модели.
func (a *EmbedAction) Execute(ctx context.Context, inv *Invocation) (map[string]any, error) {
	if len(inv.Node.OutputFields) != 1 {
		return nil, Permanentf("model_embed node %s must declare exactly one output field, got %d",
			inv.Node.ID, len(inv.Node.OutputFields))
	}

	vectors, err := a.embedder.EmbedDocuments(ctx, []string{inv.Rendered})
	if err != nil {
		// Сеть, перегрузка, таймаут сервиса моделей
		return nil, Transient(fmt.Errorf("embed: %w", err))
	}
	if len(vectors) == 0 {
		return nil, Transientf("embedder returned no vectors")
	}

	return map[string]any{inv.Node.OutputFields[0]: vectors[0]}, nil
}

// CompleteAction выполняет model_complete узлы: отрендеренная
// инструкция отправляется completion-модели, ответ парсится как
// JSON-объект и раскладывается по выходным полям узла.
type CompleteAction struct {
	client llms.Model
}

// NewCompleteAction создаёт CompleteAction поверх OpenAI-совместимого API.
func NewCompleteAction(cfg ModelConfig) (*CompleteAction, error) {
	token := cfg.Token
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithModel(cfg.CompletionModel),
	)
	if err != nil {
		return nil, fmt.Errorf("new completion client: %w", err)
	}

	return &CompleteAction{client: client}, nil
}

// Execute отправляет инструкцию completion-модели и выбирает из её
// JSON-ответа объявленные выходные поля.
//
// Некорректный JSON и недостающие ключи классифицируются как
// временные ошибки: модель недетерминирована, повтор того же prompt
// может дать разбираемый ответ.
func (a *CompleteAction) Execute(ctx context.Context, inv *Invocation) (map[string]any, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(inv.Rendered)},
		},
	}

	response, err := a.client.GenerateContent(ctx, content,
		llms.WithTemperature(0.0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return nil, Transient(fmt.Errorf("complete: %w", err))
	}
	if len(response.Choices) == 0 {
		return nil, Transientf("completion returned no choices")
	}

	parsed, err := parseModelJSON(response.Choices[0].Content)
	if err != nil {
		return nil, Transient(err)
	}

	outputs := make(map[string]any, len(inv.Node.OutputFields))
	for _, field := range inv.Node.OutputFields {
		value, ok := parsed[field]
		if !ok {
			return nil, Transientf("completion output missing field %q", field)
		}
		outputs[field] = value
	}
	return outputs, nil
}

// parseModelJSON разбирает ответ модели как JSON-объект,
// предварительно срезая markdown-ограждения.
func parseModelJSON(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parse completion JSON: %w", err)
	}
	return parsed, nil
}
