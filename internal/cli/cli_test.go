package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shaiso/ModuleTrack/internal/api"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/execution"
	"github.com/shaiso/ModuleTrack/internal/storetest"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const powerBoardYAML = `
name: Power bring-up
steps:
  - kind: VOLTAGE
    parameter_name: 5V rail
    min: 4.5
    max: 5.5
  - kind: QUESTION
    text: LED lit?
    required_answer: true
`

var (
	admin      = domain.Operator{ID: "admin", Superuser: true}
	technician = domain.Operator{ID: "tech1", Groups: []string{domain.GroupTestOperator}}
	qa         = domain.Operator{ID: "qa1", Groups: []string{domain.GroupQASignoff}}
)

type harness struct {
	t      *testing.T
	url    string
	store  *storetest.Store
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := storetest.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := execution.New(execution.Config{
		Configs:  store.Configs(),
		Units:    store.Units(),
		Sessions: store.Sessions(),
		Results:  store.Results(),
		Logger:   logger,
	})
	h := api.NewHandler(api.Config{
		Configs:   store.Configs(),
		PCBTypes:  store.PCBTypes(),
		Units:     store.Units(),
		Sessions:  store.Sessions(),
		Audit:     store.Audit(),
		Execution: svc,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &harness{t: t, url: srv.URL, store: store}
}

// run выполняет команду CLI от имени op. С jsonMode данные пишутся в stdout как JSON.
func (h *harness) run(op domain.Operator, jsonMode bool, stdin string, args ...string) error {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()

	clientFn := func() *Client { return NewClient(h.url, op) }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &h.stdout, &h.stderr) }

	root := &cobra.Command{Use: "moduletrack", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(
		NewConfigCmd(clientFn, outputFn),
		NewBatchCmd(clientFn, outputFn),
		NewTestCmd(clientFn, outputFn),
		NewSessionCmd(clientFn, outputFn),
	)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	return root.Execute()
}

func (h *harness) decode(v any) {
	h.t.Helper()
	require.NoError(h.t, json.Unmarshal(h.stdout.Bytes(), v), h.stdout.String())
}

// seed импортирует процедуру и регистрирует партию с платой SN-0001.
func (h *harness) seed() (TestConfigResponse, BatchResponse) {
	h.t.Helper()
	ctx := context.Background()

	pcbType := &domain.PCBType{Name: "Power board"}
	require.NoError(h.t, h.store.PCBTypes().Create(ctx, pcbType))

	require.NoError(h.t, h.run(admin, true, powerBoardYAML, "config", "import", "-"))
	var imported ImportResponse
	h.decode(&imported)
	require.Equal(h.t, []string{"Power bring-up"}, imported.Created)

	require.NoError(h.t, h.run(admin, true, "", "config", "list"))
	var configs []TestConfigResponse
	h.decode(&configs)
	require.Len(h.t, configs, 1)

	require.NoError(h.t, h.run(admin, true, "", "batch", "create", "B-001",
		"--pcb-type-id", pcbType.ID.String(),
		"--test-config-id", configs[0].ID,
		"--hw", "rev B"))
	var batch BatchResponse
	h.decode(&batch)

	require.NoError(h.t, h.run(admin, false, "", "batch", "add-pcb", batch.ID, "SN-0001"))
	assert.Contains(h.t, h.stderr.String(), "PCB registered: SN-0001")

	return configs[0], batch
}

func TestWorkflow(t *testing.T) {
	h := newHarness(t)
	cfg, batch := h.seed()
	require.Len(t, cfg.Steps, 2)

	require.NoError(t, h.run(technician, false, "", "test", "status", "SN-0001"))
	assert.Contains(t, h.stdout.String(), "5V rail")
	assert.Contains(t, h.stdout.String(), "NEXT")
	assert.Contains(t, h.stdout.String(), "NOT STARTED")

	// Без --step записывается следующий шаг
	require.NoError(t, h.run(technician, false, "", "test", "submit", "SN-0001", "5.0"))
	assert.Contains(t, h.stderr.String(), "5V rail: PASS (5.0)")
	assert.Contains(t, h.stderr.String(), "Next: LED lit?")

	require.NoError(t, h.run(technician, true, "", "test", "submit", "SN-0001", "yes"))
	var submitted SubmitResponse
	h.decode(&submitted)
	require.NotNil(t, submitted.State.Session)
	assert.Nil(t, submitted.State.NextStep)
	assert.Equal(t, Progress{Completed: 2, Total: 2, Fraction: 1}, submitted.State.Progress)
	sessionID := submitted.State.Session.ID

	// Все шаги выполнены
	err := h.run(technician, false, "", "test", "submit", "SN-0001", "yes")
	require.Error(t, err)

	require.NoError(t, h.run(technician, false, "", "session", "complete", sessionID, "--notes", "ok"))
	assert.Contains(t, h.stderr.String(), "Session completed: PASSED")

	// Техник не может подписывать
	err = h.run(technician, false, "", "session", "signoff", sessionID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)

	require.NoError(t, h.run(qa, false, "", "session", "signoff", sessionID))
	assert.Contains(t, h.stderr.String(), "signed off by qa1")

	require.NoError(t, h.run(qa, true, "", "session", "list", "--serial", "SN-0001"))
	var sessions []SessionListItem
	h.decode(&sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "PASSED", sessions[0].Verdict)
	assert.True(t, sessions[0].SignedOff)

	require.NoError(t, h.run(qa, false, "", "session", "show", sessionID))
	assert.Contains(t, h.stdout.String(), "signed off by qa1")
	assert.Contains(t, h.stdout.String(), "CONFIGURED")

	require.NoError(t, h.run(qa, true, "", "batch", "pcbs", batch.ID))
	var pcbs []PCBResponse
	h.decode(&pcbs)
	require.Len(t, pcbs, 1)
	assert.Equal(t, "SN-0001", pcbs[0].SerialNumber)
}

func TestSubmit_InvalidInput(t *testing.T) {
	h := newHarness(t)
	h.seed()

	err := h.run(technician, false, "", "test", "submit", "SN-0001", "five")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Zero(t, h.store.ResultCount())
}

func TestUnknownPCB(t *testing.T) {
	h := newHarness(t)
	h.seed()

	err := h.run(technician, false, "", "test", "status", "SN-9999")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestConfigImport_Conflict(t *testing.T) {
	h := newHarness(t)
	h.seed()

	err := h.run(admin, false, powerBoardYAML, "config", "import", "-")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	require.NoError(t, h.run(admin, false, powerBoardYAML, "config", "import", "-", "--replace"))
	assert.Contains(t, h.stdout.String(), "updated")
}

func TestConfigDelete_RequiresConfirm(t *testing.T) {
	h := newHarness(t)
	cfg, _ := h.seed()

	require.Error(t, h.run(admin, false, "", "config", "delete", cfg.ID))

	err := h.run(admin, false, "", "config", "delete", cfg.ID, "--confirm", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	require.NoError(t, h.run(admin, false, "", "config", "delete", cfg.ID, "--confirm", cfg.Name))
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "QUESTION=1 VOLTAGE=2", formatCounts(map[string]int{"VOLTAGE": 2, "QUESTION": 1, "CURRENT": 0}))
	assert.Empty(t, formatCounts(nil))
}
