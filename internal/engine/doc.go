// Package engine runs the enrollment resolution pipeline over batches.
//
// Process handles one correlated batch synchronously:
//
//  1. hydrate: attach the existing policy, plan, subscriber history and
//     carrier profile to every notice
//  2. filter: drop stale, duplicate and malformed notices
//  3. bogus: drop notices contradicted by the rest of the batch
//  4. whole-batch match: a compound multi-year action may claim every
//     surviving notice at once
//  5. order: linearise the causal graph
//  6. partition: split the order into chunks
//  7. classify and execute: the first qualifying descriptor is bound,
//     persisted, and published
//
// Nothing is shared between batches except the collaborators. Run drives a
// queue of batches with a fixed number of workers; each batch is still
// processed by exactly one goroutine.
//
// A causal cycle, a collaborator failure, or a partial persist stops the
// batch and is returned as a RuntimeError so the inbound message can be
// redelivered. Chunks persisted before the failure carry markers and are
// filtered out on redelivery.
package engine
