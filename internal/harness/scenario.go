package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance test: setup, an HTTP flow, and
// assertions over the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config adjusts server policy for this scenario.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Setup declares the entities that exist before the flow runs.
	Setup Setup `yaml:"setup,omitempty"`

	// Flow contains the HTTP steps with expected responses.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final store state after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioConfig holds the per-scenario server policy knobs.
type ScenarioConfig struct {
	AllowAnonReads  *bool `yaml:"allow_anon_reads,omitempty"`
	AllowAnonWrites *bool `yaml:"allow_anon_writes,omitempty"`
}

// Setup declares initial entities. Everything is created directly through
// the store, bypassing ACL, so scenarios control exactly which grants the
// flow exercises.
type Setup struct {
	Bags    []SetupBag    `yaml:"bags,omitempty"`
	Recipes []SetupRecipe `yaml:"recipes,omitempty"`
	Roles   []string      `yaml:"roles,omitempty"`
	Users   []SetupUser   `yaml:"users,omitempty"`
	Grants  []SetupGrant  `yaml:"grants,omitempty"`
}

// SetupBag declares a bag.
type SetupBag struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	TitlePrefix string `yaml:"title_prefix,omitempty"`
}

// SetupRecipe declares a recipe; bag order in the list is position order.
type SetupRecipe struct {
	Name string   `yaml:"name"`
	Bags []string `yaml:"bags"`
}

// SetupUser declares an account with an optional role set.
type SetupUser struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Admin    bool     `yaml:"admin,omitempty"`
	Roles    []string `yaml:"roles,omitempty"`
}

// SetupGrant declares one ACL row.
type SetupGrant struct {
	EntityType string `yaml:"entity_type"`
	Entity     string `yaml:"entity"`
	Role       string `yaml:"role"`
	Permission string `yaml:"permission"`
}

// FlowStep is either an HTTP request or a feed read, with expectations.
type FlowStep struct {
	Request *RequestStep `yaml:"request,omitempty"`
	Feed    *FeedStep    `yaml:"feed,omitempty"`
	Expect  *ExpectClause `yaml:"expect,omitempty"`
}

// RequestStep describes one HTTP request.
type RequestStep struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`

	// JSON, when set, is sent as the request body with a JSON content type.
	JSON map[string]any `yaml:"json,omitempty"`

	// Headers are added to the request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// As names a setup user to authenticate as. Empty means anonymous.
	As string `yaml:"as,omitempty"`
}

// FeedStep opens the recipe change feed at a cursor and collects the
// backlog events.
type FeedStep struct {
	Recipe string `yaml:"recipe"`
	Cursor int64  `yaml:"cursor"`
	As     string `yaml:"as,omitempty"`
}

// ExpectClause specifies the expected response.
type ExpectClause struct {
	// Status is the expected HTTP status code (request steps).
	Status int `yaml:"status,omitempty"`

	// Headers are expected response header values, exact match.
	Headers map[string]string `yaml:"headers,omitempty"`

	// BodyContains are substrings the response body must include.
	BodyContains []string `yaml:"body_contains,omitempty"`

	// EventIDs are the exact revision ids a feed step must deliver.
	EventIDs []int64 `yaml:"event_ids,omitempty"`
}

// Assertion validates final store state.
type Assertion struct {
	// Type is one of: resolved, absent, revision_count, delta_count.
	Type string `yaml:"type"`

	Recipe string `yaml:"recipe,omitempty"`
	Title  string `yaml:"title,omitempty"`

	// Bag is the expected winning bag (resolved) or target bag
	// (revision_count).
	Bag string `yaml:"bag,omitempty"`

	// Text is the expected text field value (resolved).
	Text string `yaml:"text,omitempty"`

	// Count is the expected number of rows (revision_count, delta_count).
	Count int `yaml:"count,omitempty"`

	// Cursor and IncludeDeleted parameterize delta_count.
	Cursor         int64 `yaml:"cursor,omitempty"`
	IncludeDeleted bool  `yaml:"include_deleted,omitempty"`
}

// Assertion type constants.
const (
	AssertResolved      = "resolved"
	AssertAbsent        = "absent"
	AssertRevisionCount = "revision_count"
	AssertDeltaCount    = "delta_count"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping assertions.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		switch {
		case step.Request != nil && step.Feed != nil:
			return fmt.Errorf("flow[%d]: request and feed are mutually exclusive", i)
		case step.Request != nil:
			if step.Request.Method == "" || step.Request.Path == "" {
				return fmt.Errorf("flow[%d]: request needs method and path", i)
			}
		case step.Feed != nil:
			if step.Feed.Recipe == "" {
				return fmt.Errorf("flow[%d]: feed needs a recipe", i)
			}
		default:
			return fmt.Errorf("flow[%d]: either request or feed is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertResolved, AssertAbsent:
		if a.Recipe == "" || a.Title == "" {
			return fmt.Errorf("assertions[%d]: recipe and title are required for %s", index, a.Type)
		}
	case AssertRevisionCount:
		if a.Bag == "" {
			return fmt.Errorf("assertions[%d]: bag is required for revision_count", index)
		}
	case AssertDeltaCount:
		if a.Recipe == "" {
			return fmt.Errorf("assertions[%d]: recipe is required for delta_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
