package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenarioValid(t *testing.T) {
	path := writeScenario(t, `
name: sample
description: "a sample scenario"
setup:
  bags:
    - name: b1
flow:
  - request:
      method: PUT
      path: /bags/b1/tiddlers/x
      json: { text: "y" }
    expect: { status: 204 }
assertions:
  - type: revision_count
    bag: b1
    count: 1
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "sample", scenario.Name)
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, "PUT", scenario.Flow[0].Request.Method)
	assert.Equal(t, 204, scenario.Flow[0].Expect.Status)
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "has a typo"
flows:
  - request: { method: GET, path: /x }
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
}

func TestLoadScenarioRequiresFlow(t *testing.T) {
	path := writeScenario(t, `
name: empty
description: "no flow"
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow")
}

func TestLoadScenarioRejectsAmbiguousStep(t *testing.T) {
	path := writeScenario(t, `
name: ambiguous
description: "request and feed in one step"
flow:
  - request: { method: GET, path: /x }
    feed: { recipe: r1 }
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestLoadScenarioRejectsBadAssertion(t *testing.T) {
	path := writeScenario(t, `
name: badassert
description: "unknown assertion type"
flow:
  - request: { method: GET, path: /x }
assertions:
  - type: mind_reading
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assertion type")
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
