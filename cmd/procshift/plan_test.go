package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/procshift/pkg/migration"
)

const orderV1 = `
key: order
version: 1
activities:
  - id: start
    kind: start_event
    outgoing: [ship]
  - id: ship
    kind: user_task
    outgoing: [end]
  - id: end
    kind: end_event
`

const orderV2 = `
key: order
version: 2
activities:
  - id: start
    kind: start_event
    outgoing: [dispatch]
  - id: dispatch
    kind: user_task
    outgoing: [end]
  - id: end
    kind: end_event
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	root := &cli.Command{
		Name:     "procshift",
		Writer:   &out,
		Commands: []*cli.Command{PlanCommand()},
	}

	err := root.Run(context.Background(), append([]string{"procshift"}, args...))

	return out.String(), err
}

func TestPlanValidate(t *testing.T) {
	definitions := t.TempDir()
	writeFile(t, definitions, "order-v1.yaml", orderV1)
	writeFile(t, definitions, "order-v2.yaml", orderV2)

	plans := t.TempDir()
	valid := writeFile(t, plans, "valid.yaml", `
source_definition_id: order:1
target_definition_id: order:2
instructions:
  - source_activity_id: ship
    target_activity_id: dispatch
    variables:
      carrier: acme
`)
	invalid := writeFile(t, plans, "invalid.json", `{
  "source_definition_id": "order:1",
  "target_definition_id": "order:2",
  "instructions": [{"source_activity_id": "ship", "target_activity_id": "missing"}]
}`)

	out, err := runCLI(t, "plan", "validate", "--plan-file", valid, "--definitions-path", definitions)
	require.NoError(t, err)

	var plan map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, "order:1", plan["source_definition_id"])
	assert.Contains(t, out, `"target_activity_id": "dispatch"`)

	_, err = runCLI(t, "plan", "validate", "--plan-file", invalid, "--definitions-path", definitions)
	assert.True(t, migration.IsPlanInvalid(err))

	_, err = runCLI(t, "plan", "validate", "--plan-file", filepath.Join(plans, "missing.yaml"), "--definitions-path", definitions)
	assert.Error(t, err)
}

func TestPlanExecute_NoInstances(t *testing.T) {
	definitions := t.TempDir()
	writeFile(t, definitions, "order-v1.yaml", orderV1)
	writeFile(t, definitions, "order-v2.yaml", orderV2)

	plan := writeFile(t, t.TempDir(), "plan.yaml", `
source_definition_id: order:1
target_definition_id: order:2
instructions:
  - source_activity_id: ship
    target_activity_id: dispatch
`)

	out, err := runCLI(t, "plan", "execute",
		"--plan-file", plan,
		"--definitions-path", definitions,
		"--database-url", "bolt://"+filepath.Join(t.TempDir(), "procshift.db"),
	)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.EqualValues(t, 0, report["total"])
}

func TestMergeInstructions(t *testing.T) {
	generated := []migration.Instruction{
		{SourceActivityID: "a", TargetActivityID: "a"},
		{SourceActivityID: "b", TargetActivityID: "b"},
	}
	explicit := []migration.Instruction{
		{SourceActivityID: "b", TargetActivityID: "c", UpdateEventTrigger: true},
	}

	merged := mergeInstructions(generated, explicit)
	require.Len(t, merged, 2)
	assert.Equal(t, "a", merged[0].TargetActivityID)
	assert.Equal(t, "c", merged[1].TargetActivityID)
	assert.True(t, merged[1].UpdateEventTrigger)
}
