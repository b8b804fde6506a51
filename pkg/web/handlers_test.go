package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/lock"
	"github.com/dukex/procshift/pkg/migration"
	"github.com/dukex/procshift/pkg/models"
	"github.com/dukex/procshift/pkg/persistence/memory"
	"github.com/dukex/procshift/pkg/runtime"
	"github.com/dukex/procshift/pkg/services"
	"github.com/dukex/procshift/pkg/testutil"
	"github.com/dukex/procshift/pkg/web"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	registry := definition.NewRegistry(slog.Default())
	require.NoError(t, registry.Register(definition.MustNew(testutil.BoundaryEventProcess("boundary", models.EventKindSignal))))
	require.NoError(t, registry.Register(definition.MustNew(testutil.UserTaskProcess("process"))))
	require.NoError(t, registry.Register(definition.MustNew(testutil.Version(testutil.UserTaskProcess("process"), 2))))

	store := memory.NewStore()
	locker := lock.NewLocal()

	migrator := migration.NewMigrator(registry, store, locker)
	migrationService := services.NewMigration(registry, store, migrator, nil, slog.Default())
	instancesService := services.NewInstances(runtime.NewEngine(registry, store, locker))
	validate := validator.New(validator.WithRequiredStructEnabled())

	app := fiber.New()
	web.NewAPIHandlers(migrationService, instancesService, validate, registry).Register(app)

	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func startInstance(t *testing.T, app *fiber.App, definitionID string) services.InstanceTree {
	t.Helper()

	resp, body := doRequest(t, app, http.MethodPost, "/process-instances", web.StartProcessInstanceRequest{
		DefinitionID: definitionID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var view services.InstanceTree
	require.NoError(t, json.Unmarshal(body, &view))

	return view
}

func createPlan(t *testing.T, app *fiber.App) string {
	t.Helper()

	resp, body := doRequest(t, app, http.MethodPost, "/migration-plans", web.CreateMigrationPlanRequest{
		SourceDefinitionID: "process:1",
		TargetDefinitionID: "process:2",
		Instructions:       []migration.Instruction{{SourceActivityID: "userTask", TargetActivityID: "userTask"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var plan map[string]any
	require.NoError(t, json.Unmarshal(body, &plan))

	return plan["id"].(string)
}

func TestAPIHandlers_CreateMigrationPlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedError  string
	}{
		{
			name: "successful creation",
			requestBody: web.CreateMigrationPlanRequest{
				SourceDefinitionID: "process:1",
				TargetDefinitionID: "process:2",
				Instructions:       []migration.Instruction{{SourceActivityID: "userTask", TargetActivityID: "userTask"}},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "validation error - missing source",
			requestBody: web.CreateMigrationPlanRequest{
				TargetDefinitionID: "process:2",
				Instructions:       []migration.Instruction{{SourceActivityID: "userTask", TargetActivityID: "userTask"}},
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "SourceDefinitionID",
		},
		{
			name: "validation error - empty instruction",
			requestBody: web.CreateMigrationPlanRequest{
				SourceDefinitionID: "process:1",
				TargetDefinitionID: "process:2",
				Instructions:       []migration.Instruction{{SourceActivityID: "userTask"}},
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "TargetActivityID",
		},
		{
			name: "invalid plan",
			requestBody: web.CreateMigrationPlanRequest{
				SourceDefinitionID: "process:1",
				TargetDefinitionID: "process:2",
				Instructions:       []migration.Instruction{{SourceActivityID: "userTask", TargetActivityID: "missing"}},
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  string(migration.ViolationTargetNotFound),
		},
		{
			name: "unknown definition",
			requestBody: web.CreateMigrationPlanRequest{
				SourceDefinitionID: "process:1",
				TargetDefinitionID: "process:9",
				Instructions:       []migration.Instruction{{SourceActivityID: "userTask", TargetActivityID: "userTask"}},
			},
			expectedStatus: http.StatusNotFound,
			expectedError:  "process_definition_not_found",
		},
		{
			name:           "invalid JSON",
			requestBody:    "not an object",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid JSON format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := setupTestApp(t)

			resp, body := doRequest(t, app, http.MethodPost, "/migration-plans", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			if tt.expectedError != "" {
				assert.Contains(t, string(body), tt.expectedError)
			}
		})
	}
}

func TestAPIHandlers_CreateMigrationPlan_ListsViolations(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodPost, "/migration-plans", web.CreateMigrationPlanRequest{
		SourceDefinitionID: "process:1",
		TargetDefinitionID: "process:2",
		Instructions: []migration.Instruction{
			{SourceActivityID: "missing", TargetActivityID: "userTask"},
			{SourceActivityID: "userTask", TargetActivityID: "nowhere"},
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	var problem struct {
		Type       string                `json:"type"`
		Status     int                   `json:"status"`
		Instance   string                `json:"instance"`
		Violations []migration.Violation `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(body, &problem))

	assert.Equal(t, "invalid_migration_plan", problem.Type)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, "/migration-plans", problem.Instance)
	require.Len(t, problem.Violations, 2)
	assert.Equal(t, migration.ViolationSourceNotFound, problem.Violations[0].Kind)
	assert.Equal(t, 1, problem.Violations[1].Index)
	assert.Equal(t, migration.ViolationTargetNotFound, problem.Violations[1].Kind)
}

func TestAPIHandlers_GetMigrationPlan(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	id := createPlan(t, app)

	resp, body := doRequest(t, app, http.MethodGet, "/migration-plans/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plan map[string]any
	require.NoError(t, json.Unmarshal(body, &plan))
	assert.Equal(t, id, plan["id"])
	assert.Equal(t, "process:1", plan["source_definition_id"])
	assert.Equal(t, "process:2", plan["target_definition_id"])

	resp, body = doRequest(t, app, http.MethodGet, "/migration-plans/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "migration_plan_not_found")
}

func TestAPIHandlers_ExecuteMigrationPlan(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	instanceID := startInstance(t, app, "process:1").ProcessInstance.ID

	id := createPlan(t, app)

	resp, body := doRequest(t, app, http.MethodPost, "/migration-plans/"+id+"/executions", web.ExecuteMigrationPlanRequest{
		ProcessInstanceIDs: []string{instanceID},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var report services.ExecutionReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, id, report.PlanID)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, migration.StatusSucceeded, report.Outcomes[0].Status)

	resp, body = doRequest(t, app, http.MethodGet, "/process-instances/"+instanceID+"/tree", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view services.InstanceTree
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "process:2", view.ProcessInstance.DefinitionID)
	require.NotNil(t, view.ActivityInstances)
	assert.Equal(t, "process:2", view.ActivityInstances.ActivityID)

	resp, _ = doRequest(t, app, http.MethodPost, "/migration-plans/"+id+"/executions", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/migration-plans/"+id+"/executions", web.ExecuteMigrationPlanRequest{
		ProcessInstanceIDs: []string{""},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/migration-plans/missing/executions", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_GetProcessInstanceTree_NotFound(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/process-instances/missing/tree", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "process_instance_not_found")
}

func TestAPIHandlers_ProcessDefinitionsAndHealth(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/process-definitions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"id":"process:2"`)

	resp, body = doRequest(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestAPIHandlers_ProcessInstanceLifecycle(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	view := startInstance(t, app, "boundary:1")
	require.Len(t, view.EventSubscriptions, 1)

	base := "/process-instances/" + view.ProcessInstance.ID

	resp, body := doRequest(t, app, http.MethodPost, base+"/signals", web.EventRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	resp, body = doRequest(t, app, http.MethodPost, base+"/messages", web.EventRequest{Name: "Unknown"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(body))

	resp, body = doRequest(t, app, http.MethodPost, base+"/signals", web.EventRequest{Name: testutil.SignalName})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &view))

	task := view.ActivityInstances.Find("afterBoundaryTask")
	require.NotNil(t, task)

	resp, body = doRequest(t, app, http.MethodPost, base+"/activity-instances/"+task.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, models.InstanceStateEnded, view.ProcessInstance.State)

	resp, _ = doRequest(t, app, http.MethodPost, base+"/activity-instances/"+task.ID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/process-instances/missing/jobs/job-1/execute", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/process-instances", web.StartProcessInstanceRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
