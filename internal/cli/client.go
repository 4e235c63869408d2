package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shaiso/ModuleTrack/internal/access"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StepResponse — шаг процедуры из API.
type StepResponse struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Order int    `json:"order"`
	Label string `json:"label"`
}

// TestConfigResponse — тестовая процедура из API.
type TestConfigResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Steps       []StepResponse `json:"steps"`
	StepCounts  map[string]int `json:"step_counts"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

// ImportResponse — результат импорта процедур.
type ImportResponse struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
}

// BatchResponse — партия из API.
type BatchResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	PCBTypeID       string `json:"pcb_type_id"`
	TestConfigID    string `json:"test_config_id,omitempty"`
	HardwareVersion string `json:"hardware_version,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// PCBResponse — плата из API.
type PCBResponse struct {
	ID                      string `json:"id"`
	SerialNumber            string `json:"serial_number"`
	BatchID                 string `json:"batch_id"`
	HardwareModified        bool   `json:"hardware_modified"`
	ModifiedHardwareVersion string `json:"modified_hardware_version,omitempty"`
	CreatedAt               string `json:"created_at"`
}

// ResultResponse — результат шага из API.
type ResultResponse struct {
	ID        string  `json:"id"`
	SessionID string  `json:"session_id"`
	StepID    *string `json:"step_id"`
	Kind      string  `json:"kind"`
	Label     string  `json:"label"`
	Passed    bool    `json:"passed"`
	RawInput  string  `json:"raw_input"`
	CreatedAt string  `json:"created_at"`
}

// SessionResponse — тестовая сессия из API.
type SessionResponse struct {
	ID           string `json:"id"`
	PCBID        string `json:"pcb_id"`
	TestConfigID string `json:"test_config_id"`
	OperatorID   string `json:"operator_id"`
	Notes        string `json:"notes,omitempty"`
	Verdict      string `json:"verdict"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at,omitempty"`
	AbandonedAt  string `json:"abandoned_at,omitempty"`
}

// SessionListItem — сессия в списке.
type SessionListItem struct {
	SessionResponse
	SerialNumber string `json:"serial_number"`
	SignedOff    bool   `json:"signed_off"`
}

// Progress — прогресс выполнения процедуры.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
}

// KindSummary — статистика по виду шагов.
type KindSummary struct {
	Kind       string `json:"kind"`
	Configured int    `json:"configured"`
	Recorded   int    `json:"recorded"`
	Passed     int    `json:"passed"`
}

// ExecutionState — состояние выполнения процедуры на плате.
type ExecutionState struct {
	PCB             PCBResponse        `json:"pcb"`
	Batch           BatchResponse      `json:"batch"`
	HardwareVersion string             `json:"hardware_version,omitempty"`
	TestConfig      TestConfigResponse `json:"test_config"`
	Session         *SessionResponse   `json:"session"`
	Results         []ResultResponse   `json:"results"`
	NextStep        *StepResponse      `json:"next_step"`
	Progress        Progress           `json:"progress"`
}

// SubmitResponse — ответ на ввод результата шага.
type SubmitResponse struct {
	Result ResultResponse `json:"result"`
	State  ExecutionState `json:"state"`
}

// SignoffResponse — подпись QA.
type SignoffResponse struct {
	SessionID   string `json:"session_id"`
	QAUserID    string `json:"qa_user_id"`
	Notes       string `json:"notes,omitempty"`
	SignedOffAt string `json:"signed_off_at"`
}

// SessionDetail — сессия с результатами и подписью.
type SessionDetail struct {
	Session    SessionResponse    `json:"session"`
	TestConfig TestConfigResponse `json:"test_config"`
	Results    []ResultResponse   `json:"results"`
	Summary    []KindSummary      `json:"summary"`
	Progress   Progress           `json:"progress"`
	Signoff    *SignoffResponse   `json:"signoff"`
	AllPassed  bool               `json:"all_passed"`
}

// AuditEvent — событие журнала аудита.
type AuditEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OperatorID string         `json:"operator_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt string         `json:"occurred_at"`
}

// --- Request types ---

// CreateBatchRequest — создание партии.
type CreateBatchRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	PCBTypeID       string `json:"pcb_type_id"`
	TestConfigID    string `json:"test_config_id,omitempty"`
	HardwareVersion string `json:"hardware_version,omitempty"`
}

// CreatePCBRequest — регистрация платы.
type CreatePCBRequest struct {
	SerialNumber            string `json:"serial_number"`
	HardwareModified        bool   `json:"hardware_modified"`
	ModifiedHardwareVersion string `json:"modified_hardware_version,omitempty"`
}

// ListSessionsOpts — параметры фильтрации сессий.
type ListSessionsOpts struct {
	PCBID        string
	SerialNumber string
	OperatorID   string
	Search       string
	Order        string
	Limit        int
	Offset       int
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
		Field   string `json:"field,omitempty"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для ModuleTrack API.
// Каждый запрос несёт идентичность оператора в заголовках.
type Client struct {
	baseURL    string
	operator   domain.Operator
	httpClient *http.Client
}

// NewClient создаёт клиент для API от имени оператора op.
func NewClient(baseURL string, op domain.Operator) *Client {
	return &Client{
		baseURL:  baseURL,
		operator: op,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Test configs ---

// ListTestConfigs возвращает все тестовые процедуры.
func (c *Client) ListTestConfigs() ([]TestConfigResponse, error) {
	var configs []TestConfigResponse
	_, err := c.list("/api/v1/test-configs", nil, &configs)
	return configs, err
}

// GetTestConfig возвращает процедуру по ID.
func (c *Client) GetTestConfig(id string) (*TestConfigResponse, error) {
	var cfg TestConfigResponse
	err := c.get("/api/v1/test-configs/"+url.PathEscape(id), &cfg)
	return &cfg, err
}

// ImportTestConfigs загружает YAML-документы процедур.
func (c *Client) ImportTestConfigs(r io.Reader, replace bool) (*ImportResponse, error) {
	path := "/api/v1/test-configs/import"
	if replace {
		path += "?replace=true"
	}

	resp, err := c.send(http.MethodPost, path, r, "application/yaml")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res ImportResponse
	if err := c.decodeData(resp, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteTestConfig удаляет процедуру; confirmName должен совпасть с названием.
func (c *Client) DeleteTestConfig(id, confirmName string) error {
	body := map[string]string{"confirm_name": confirmName}
	return c.doData(http.MethodDelete, "/api/v1/test-configs/"+url.PathEscape(id), body, nil)
}

// --- Batches and PCBs ---

// ListBatches возвращает партии. Если pcbTypeID не пустой — фильтрует.
func (c *Client) ListBatches(pcbTypeID string) ([]BatchResponse, error) {
	params := url.Values{}
	if pcbTypeID != "" {
		params.Set("pcb_type_id", pcbTypeID)
	}

	var batches []BatchResponse
	_, err := c.list("/api/v1/batches", params, &batches)
	return batches, err
}

// CreateBatch создаёт партию.
func (c *Client) CreateBatch(req CreateBatchRequest) (*BatchResponse, error) {
	var batch BatchResponse
	err := c.post("/api/v1/batches", req, &batch)
	return &batch, err
}

// ListBatchPCBs возвращает платы партии.
func (c *Client) ListBatchPCBs(batchID string) ([]PCBResponse, error) {
	var pcbs []PCBResponse
	_, err := c.list("/api/v1/batches/"+url.PathEscape(batchID)+"/pcbs", nil, &pcbs)
	return pcbs, err
}

// CreatePCB регистрирует плату в партии.
func (c *Client) CreatePCB(batchID string, req CreatePCBRequest) (*PCBResponse, error) {
	var pcb PCBResponse
	err := c.post("/api/v1/batches/"+url.PathEscape(batchID)+"/pcbs", req, &pcb)
	return &pcb, err
}

// FindPCB возвращает плату по серийному номеру.
func (c *Client) FindPCB(serial string) (*PCBResponse, error) {
	var pcb PCBResponse
	err := c.get("/api/v1/pcbs?serial_number="+url.QueryEscape(serial), &pcb)
	return &pcb, err
}

// --- Execution ---

// GetExecution возвращает состояние выполнения процедуры на плате.
func (c *Client) GetExecution(pcbID string) (*ExecutionState, error) {
	var state ExecutionState
	err := c.get("/api/v1/pcbs/"+url.PathEscape(pcbID)+"/execution", &state)
	return &state, err
}

// SubmitStep отправляет ввод оператора по шагу.
func (c *Client) SubmitStep(pcbID, stepID, value string) (*SubmitResponse, error) {
	body := map[string]string{"step_id": stepID, "value": value}
	var res SubmitResponse
	err := c.post("/api/v1/pcbs/"+url.PathEscape(pcbID)+"/execution", body, &res)
	return &res, err
}

// --- Sessions ---

// ListSessions возвращает страницу сессий и их общее число.
func (c *Client) ListSessions(opts ListSessionsOpts) ([]SessionListItem, int, error) {
	params := url.Values{}
	set := func(key, value string) {
		if value != "" {
			params.Set(key, value)
		}
	}
	set("pcb_id", opts.PCBID)
	set("serial_number", opts.SerialNumber)
	set("operator_id", opts.OperatorID)
	set("search", opts.Search)
	set("order", opts.Order)
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var sessions []SessionListItem
	total, err := c.list("/api/v1/sessions", params, &sessions)
	return sessions, total, err
}

// GetSession возвращает сессию с результатами.
func (c *Client) GetSession(id string) (*SessionDetail, error) {
	var d SessionDetail
	err := c.get("/api/v1/sessions/"+url.PathEscape(id), &d)
	return &d, err
}

// CompleteSession завершает сессию и фиксирует итог.
func (c *Client) CompleteSession(id, notes string) (*SessionResponse, error) {
	var sess SessionResponse
	err := c.post("/api/v1/sessions/"+url.PathEscape(id)+"/complete", map[string]string{"notes": notes}, &sess)
	return &sess, err
}

// SignOff записывает подпись QA.
func (c *Client) SignOff(id, notes string) (*SignoffResponse, error) {
	var so SignoffResponse
	err := c.post("/api/v1/sessions/"+url.PathEscape(id)+"/signoff", map[string]string{"notes": notes}, &so)
	return &so, err
}

// ListSessionEvents возвращает журнал событий сессии.
func (c *Client) ListSessionEvents(id string) ([]AuditEvent, error) {
	var events []AuditEvent
	_, err := c.list("/api/v1/sessions/"+url.PathEscape(id)+"/events", nil, &events)
	return events, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) (int, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return 0, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return lr.Total, json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decodeData(resp, result)
}

func (c *Client) decodeData(resp *http.Response, result any) error {
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
	if body == nil {
		return c.send(method, path, nil, "")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.send(method, path, bytes.NewReader(data), "application/json")
}

func (c *Client) send(method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	access.SetHeaders(req.Header, c.operator)

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: http.StatusText(resp.StatusCode)}
	}

	return &APIError{
		Status:  resp.StatusCode,
		Code:    er.Error.Code,
		Message: er.Error.Message,
		Field:   er.Error.Field,
	}
}
