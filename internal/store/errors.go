package store

import "fmt"

// KeyCollisionError reports two distinct extracted entities producing the
// same key within one ingestion batch. It aborts the batch: the uniqueness
// invariant anchors diffing across time and cannot be degraded.
type KeyCollisionError struct {
	Key  string
	Path string
}

func (e *KeyCollisionError) Error() string {
	return fmt.Sprintf("key collision in %s: %s", e.Path, e.Key)
}

// InvalidTransitionError reports a rejected propose operation, typically a
// second proposal on an entity already in a pending state without override.
type InvalidTransitionError struct {
	Key    string
	State  FutureAction
	Action FutureAction
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s on %s (pending %s): %s",
		e.Action, e.Key, e.State, e.Reason)
}

// QueryError reports a malformed predicate string. It is raised during
// parsing, before any scan executes.
type QueryError struct {
	Input   string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("bad predicate %q: %s", e.Input, e.Message)
}
