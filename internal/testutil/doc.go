// Package testutil provides deterministic builders and in-memory
// collaborators for tests.
//
// The fakes record every call so tests can assert on the exact sequence of
// mutations an action performed.
package testutil
