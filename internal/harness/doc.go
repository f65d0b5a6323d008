// Package harness runs compile scenarios: YAML files that point at a schema
// descriptor, name the repository methods to compile, and assert on the
// resulting plans or errors.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: ../schemas/people.yaml      # relative to the scenario file
//	repository: PersonRepository        # optional: compile its declared methods
//	entity: Person                      # entity of the inline methods
//	methods:                            # optional inline methods
//	  - name: findByNameAndAgeGreaterThan
//	    params: [{type: String}, {type: int}]
//	    returns: List
//	    element: Person
//	assertions:
//	  - type: compiles
//	    method: findByNameAndAgeGreaterThan
//	    op: FIND
//	    return_kind: MANY_LIST
//	    arity: 2
//	  - type: conditions
//	    method: findByNameAndAgeGreaterThan
//	    columns: [1, 3]
//	  - type: joins
//	    method: findByDepartmentName
//	    joins: [department]
//	  - type: fails
//	    method: findByNameAnd
//	    code: E203
//
// Every method is compiled on its own, so one failing method does not hide
// the others. A method that fails without a matching "fails" assertion
// fails the scenario.
//
// # Golden Files
//
// RunWithGolden snapshots every compiled plan (canonical JSON, including
// plan fingerprints) and compares it with testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./... -update
package harness
