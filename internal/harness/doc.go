// Package harness runs enrollment scenarios end to end against a real
// engine and an isolated in-memory store.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: carrier_switch
//	description: "What this scenario validates"
//	carriers:
//	  carrier-a: { cascade_cancel_renewals: true }
//	setup:
//	  plans:
//	    - { id: plan-a, carrier_id: carrier-a, year: 2024 }
//	  policies:
//	    - id: "1"
//	      subscriber_id: sub-1
//	      plan_id: plan-a
//	      carrier_id: carrier-a
//	      start: "2024-01-01"
//	steps:
//	  - batch:
//	      id: switch-1
//	      events: [ ... ]
//	    expect:
//	      dropped: 0
//	      actions: [CarrierSwitch]
//	assertions:
//	  - type: trace_contains
//	    action: CarrierSwitch
//	    hbx_enrollment_ids: ["1", "2"]
//	  - type: final_state
//	    table: policies
//	    where: { id: "1" }
//	    expect: { status: terminated }
//
// Batch events use the same wire form accepted by the resolve command and
// the HTTP API.
//
// # Assertion Types
//
//   - trace_contains: a chunk ran with the given action, notices and outcome
//   - trace_order: actions ran in the given relative order
//   - trace_count: an action ran exactly N times
//   - final_state: a store table row matches expected column values
//
// # Determinism
//
// Each scenario gets a fresh in-memory SQLite database and a fresh engine
// clock. Steps without a batch id are named after the scenario and step
// number, so traces and rendered confirmations are reproducible and can be
// compared against golden files.
package harness
