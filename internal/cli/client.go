package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// PipelineResponse — pipeline из API.
type PipelineResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// PipelineVersionResponse — версия pipeline из API.
type PipelineVersionResponse struct {
	PipelineID string         `json:"pipeline_id"`
	Version    int            `json:"version"`
	Spec       map[string]any `json:"spec"`
	CreatedAt  string         `json:"created_at"`
}

// TemplateResponse — шаблон из API.
type TemplateResponse struct {
	ID        string `json:"id"`
	Version   int    `json:"version"`
	Name      string `json:"name,omitempty"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// IngestResult — итог приёма одного payload.
type IngestResult struct {
	Index int    `json:"index"`
	DocID string `json:"doc_id,omitempty"`
	Error string `json:"error,omitempty"`
}

// IngestReceipt — итог приёма батча.
type IngestReceipt struct {
	PipelineID string         `json:"pipeline_id"`
	Version    int            `json:"version"`
	Accepted   int            `json:"accepted"`
	Results    []IngestResult `json:"results"`
}

// RunStateResponse — состояние прохождения документа из API.
type RunStateResponse struct {
	DocID           string `json:"doc_id"`
	PipelineID      string `json:"pipeline_id"`
	PipelineVersion int    `json:"pipeline_version"`
	Cursor          int    `json:"cursor"`
	Status          string `json:"status"`
	Attempt         int    `json:"attempt"`
	LastError       string `json:"last_error,omitempty"`
	FailureKind     string `json:"failure_kind,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// DocumentResponse — готовый документ из API.
type DocumentResponse struct {
	DocID           string         `json:"doc_id"`
	PipelineID      string         `json:"pipeline_id"`
	PipelineVersion int            `json:"pipeline_version"`
	Fields          map[string]any `json:"fields"`
	CreatedAt       string         `json:"created_at"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Loom API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Pipelines ---

// ListPipelines возвращает все pipelines.
func (c *Client) ListPipelines() ([]PipelineResponse, error) {
	var pipelines []PipelineResponse
	err := c.list("/api/v1/pipelines", &pipelines)
	return pipelines, err
}

// CreatePipeline создаёт новый pipeline.
func (c *Client) CreatePipeline(name string) (*PipelineResponse, error) {
	body := map[string]string{"name": name}
	var pipeline PipelineResponse
	err := c.post("/api/v1/pipelines", body, &pipeline)
	return &pipeline, err
}

// GetPipeline возвращает pipeline по ID.
func (c *Client) GetPipeline(id string) (*PipelineResponse, error) {
	var pipeline PipelineResponse
	err := c.get("/api/v1/pipelines/"+id, &pipeline)
	return &pipeline, err
}

// SetPipelineActive включает или выключает приём документов.
func (c *Client) SetPipelineActive(id string, active bool) (*PipelineResponse, error) {
	body := map[string]bool{"is_active": active}
	var pipeline PipelineResponse
	err := c.put("/api/v1/pipelines/"+id+"/active", body, &pipeline)
	return &pipeline, err
}

// PublishVersion публикует новую версию pipeline.
func (c *Client) PublishVersion(pipelineID string, spec json.RawMessage) (*PipelineVersionResponse, error) {
	body := map[string]json.RawMessage{"spec": spec}
	var version PipelineVersionResponse
	err := c.post("/api/v1/pipelines/"+pipelineID+"/versions", body, &version)
	return &version, err
}

// GetVersion возвращает конкретную версию pipeline.
func (c *Client) GetVersion(pipelineID string, version int) (*PipelineVersionResponse, error) {
	var v PipelineVersionResponse
	err := c.get(fmt.Sprintf("/api/v1/pipelines/%s/versions/%d", pipelineID, version), &v)
	return &v, err
}

// GetLatestVersion возвращает последнюю версию pipeline.
func (c *Client) GetLatestVersion(pipelineID string) (*PipelineVersionResponse, error) {
	var v PipelineVersionResponse
	err := c.get("/api/v1/pipelines/"+pipelineID+"/versions/latest", &v)
	return &v, err
}

// --- Templates ---

// ListTemplates возвращает последние версии всех шаблонов.
func (c *Client) ListTemplates() ([]TemplateResponse, error) {
	var templates []TemplateResponse
	err := c.list("/api/v1/templates", &templates)
	return templates, err
}

// CreateTemplate сохраняет новую версию шаблона.
// Пустой id создаёт новый шаблон.
func (c *Client) CreateTemplate(id, name, body string) (*TemplateResponse, error) {
	req := map[string]any{"name": name, "body": body}
	if id != "" {
		req["id"] = id
	}
	var template TemplateResponse
	err := c.post("/api/v1/templates", req, &template)
	return &template, err
}

// GetTemplate возвращает последнюю версию шаблона.
func (c *Client) GetTemplate(id string) (*TemplateResponse, error) {
	var template TemplateResponse
	err := c.get("/api/v1/templates/"+id, &template)
	return &template, err
}

// --- Ingestion ---

// Ingest принимает батч документов в pipeline.
func (c *Client) Ingest(pipelineID string, payloads []map[string]any) (*IngestReceipt, error) {
	body := map[string]any{"payloads": payloads}
	var receipt IngestReceipt
	err := c.post("/api/v1/pipelines/"+pipelineID+"/documents", body, &receipt)
	return &receipt, err
}

// --- Runs ---

// GetRun возвращает состояние прохождения документа.
func (c *Client) GetRun(docID string) (*RunStateResponse, error) {
	var state RunStateResponse
	err := c.get("/api/v1/runs/"+docID, &state)
	return &state, err
}

// CancelRun отменяет прохождение документа.
func (c *Client) CancelRun(docID string) (*RunStateResponse, error) {
	var state RunStateResponse
	err := c.post("/api/v1/runs/"+docID+"/cancel", nil, &state)
	return &state, err
}

// GetDocument возвращает готовый документ.
func (c *Client) GetDocument(docID string) (*DocumentResponse, error) {
	var doc DocumentResponse
	err := c.get("/api/v1/documents/"+docID, &doc)
	return &doc, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) list(path string, result any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
