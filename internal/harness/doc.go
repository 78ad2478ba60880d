// Package harness runs YAML scenarios against the real triage pipeline.
//
// A scenario drives the orchestrator, lifecycle manager and health monitor
// through a list of steps, then checks the final state with assertions.
// Every run uses a fresh SQLite file, a fake clock and sequence IDs, so the
// resulting trace is byte-for-byte reproducible and can be compared with a
// golden file.
//
// # Scenario Format
//
//	name: contract_needs_review
//	description: "An urgent contract is held for review"
//	clock: "2026-03-01T09:00:00Z"
//	collectors: [gmail]
//	steps:
//	  - ingest:
//	      id: "gmail:2"
//	      source: gmail
//	      sender: client@acme.com
//	      subject: "Urgent: Contract Review Needed"
//	      body: "urgent contract schedule a call"
//	    expect:
//	      state: planned
//	  - transition: { message: "gmail:2", event: human-rejects, note: "declined" }
//	  - advance: 3m
//	  - check: true
//	assertions:
//	  - type: item_state
//	    message: "gmail:2"
//	    state: rejected
//
// # Steps
//
//   - ingest: process one message synchronously through the orchestrator
//   - transition: apply a lifecycle event to the item created for a message
//   - plan: attach or revise the plan of an item
//   - heartbeat, fail, enable: report collector activity to the monitor
//   - advance: move the fake clock
//   - check: run one supervision pass
//   - sender: take the outbound sender "up" or "down"
//
// # Assertion Types
//
//   - item_state: the item created for a message is in a state
//   - item_count: number of items, optionally in one state
//   - health_status: a collector's status
//   - restart_count: a collector's restart count
//   - notification_count: notifications for an event, optionally with a result
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/newsletter_auto_send.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
