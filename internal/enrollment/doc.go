// Package enrollment defines the data model shared by the reconciliation
// pipeline: inbound notices (Event), policy lineage (Policy, Plan, Carrier),
// candidate transactions (Chunk), outbound confirmations (Document), and
// idempotency markers.
//
// It also declares the collaborator interfaces the pipeline consumes
// (Policies, Markers, Publisher, Notifier, Acknowledger, Carriers) and the
// wire form of a batch (BatchDoc) decodable from JSON or YAML.
//
// Events are value objects. Lineage is attached once by the engine through
// WithLineage, which returns a copy, so an Event never changes after it has
// been handed to a filter or classifier.
package enrollment
