package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllScenariosAgainstGolden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRunReportsExpectationMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "expects a status the server will not return",
		Setup:       Setup{Bags: []SetupBag{{Name: "b1"}}},
		Flow: []FlowStep{{
			Request: &RequestStep{Method: "PUT", Path: "/bags/missing/tiddlers/x",
				JSON: map[string]any{"text": "y"}},
			Expect: &ExpectClause{Status: 204},
		}},
	}
	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected status 204")
}

func TestRunReportsAssertionFailure(t *testing.T) {
	scenario := &Scenario{
		Name:        "assertion_failure",
		Description: "asserts a title that was never written",
		Setup: Setup{
			Bags:    []SetupBag{{Name: "b1"}},
			Recipes: []SetupRecipe{{Name: "r1", Bags: []string{"b1"}}},
		},
		Flow: []FlowStep{{
			Request: &RequestStep{Method: "PUT", Path: "/bags/b1/tiddlers/Hello",
				JSON: map[string]any{"text": "world"}},
			Expect: &ExpectClause{Status: 204},
		}},
		Assertions: []Assertion{{Type: AssertResolved, Recipe: "r1", Title: "Ghost"}},
	}
	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not resolve")
}

func TestRunTracksRevisionHeaders(t *testing.T) {
	scenario := &Scenario{
		Name:        "trace_revisions",
		Description: "trace captures revision numbers from write responses",
		Setup: Setup{
			Bags:    []SetupBag{{Name: "b1"}},
			Recipes: []SetupRecipe{{Name: "r1", Bags: []string{"b1"}}},
		},
		Flow: []FlowStep{
			{Request: &RequestStep{Method: "PUT", Path: "/bags/b1/tiddlers/A",
				JSON: map[string]any{"text": "1"}}},
			{Request: &RequestStep{Method: "PUT", Path: "/bags/b1/tiddlers/B",
				JSON: map[string]any{"text": "2"}}},
		},
	}
	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "1", result.Trace[0].Revision)
	assert.Equal(t, "2", result.Trace[1].Revision)
}
