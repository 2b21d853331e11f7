// Package harness provides scenario-based conformance testing for the
// satchel server.
//
// The harness boots an in-process server over a fresh SQLite database,
// applies a declarative setup (bags, recipes, users, roles, grants),
// executes a flow of HTTP requests, and validates both the responses and
// the final store state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config:
//	  allow_anon_reads: true
//	  allow_anon_writes: true
//	setup:
//	  bags:
//	    - name: b1
//	  recipes:
//	    - name: r1
//	      bags: [b1]
//	  roles: [readers]
//	  users:
//	    - username: root
//	      password: rootpw
//	      admin: true
//	      roles: [readers]
//	  grants:
//	    - entity_type: recipe
//	      entity: r1
//	      role: readers
//	      permission: READ
//	flow:
//	  - request:
//	      method: PUT
//	      path: /bags/b1/tiddlers/Hello
//	      json: { text: "world" }
//	      as: root
//	    expect:
//	      status: 204
//	      headers: { X-Revision-Number: "1" }
//	  - feed:
//	      recipe: r1
//	      cursor: 0
//	    expect:
//	      event_ids: [1]
//	assertions:
//	  - type: resolved
//	    recipe: r1
//	    title: Hello
//	    bag: b1
//
// # Assertion Types
//
//   - resolved: the title resolves in the recipe, optionally to a given
//     bag and text value
//   - absent: the title does not resolve in the recipe
//   - revision_count: a bag holds exactly N revision rows
//   - delta_count: a delta query over a recipe returns exactly N revisions
//
// # Deterministic Testing
//
// Revision ids are allocated sequentially from a fresh database, and the
// trace records only methods, paths, statuses, and revision numbers, so
// repeated runs produce identical traces for golden file comparison.
package harness
