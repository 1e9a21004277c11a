package store

import (
	"database/sql"
	"fmt"
)

// Per-entity state machine:
//
//	Unchanged      current_ind=1 future_ind=1 action=none
//	PendingCreate  current_ind=0 future_ind=1 action=create
//	PendingEdit    current_ind=1 future_ind=1 action=edit
//	PendingDelete  current_ind=1 future_ind=0 action=delete
//
// Propose moves Unchanged into a pending state (or inserts PendingCreate),
// Revert moves a pending state back to Unchanged, and PromoteAll commits
// every pending entity's future fields into its current fields.

// Propose records a pending action for a key. Create requires the entity
// not to exist and takes the span/identity from the key itself; Edit and
// Delete require an existing, current entity. Proposing on an entity
// already pending fails with *InvalidTransitionError unless override is
// set (last writer wins). Override never changes the action class: an
// overriding Create is only valid over a PendingCreate.
func (s *Store) Propose(key string, action FutureAction, newCode string, override bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("propose: begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := entityByKeyTx(tx, key)
	if err != nil {
		return fmt.Errorf("propose %s: %w", key, err)
	}

	switch action {
	case ActionCreate:
		if err := s.proposeCreate(tx, key, newCode, existing, override); err != nil {
			return err
		}
	case ActionEdit:
		if err := s.proposeOnExisting(tx, key, action, newCode, existing, override); err != nil {
			return err
		}
	case ActionDelete:
		if err := s.proposeOnExisting(tx, key, action, "", existing, override); err != nil {
			return err
		}
	default:
		return &InvalidTransitionError{Key: key, Action: action, Reason: "unknown action"}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("propose %s: commit: %w", key, err)
	}
	return nil
}

func (s *Store) proposeCreate(tx *sql.Tx, key, newCode string, existing *Entity, override bool) error {
	if newCode == "" {
		return &InvalidTransitionError{Key: key, Action: ActionCreate, Reason: "create requires future code"}
	}
	if existing != nil {
		// Create is only ever legal against a row that has no committed
		// source behind it. An entity that is current (Unchanged,
		// PendingEdit, PendingDelete) already exists, and override does not
		// change that: override replaces a proposal, never an entity.
		if existing.FutureAction != ActionCreate || !override {
			return &InvalidTransitionError{
				Key: key, State: existing.FutureAction, Action: ActionCreate,
				Reason: "entity already exists",
			}
		}
		// Override of an earlier pending create: replace the future code.
		_, err := tx.Exec(`UPDATE entities SET future_code = ? WHERE key = ?`, newCode, key)
		if err != nil {
			return fmt.Errorf("propose create %s: %w", key, err)
		}
		return nil
	}

	// The key carries everything needed to seed the row.
	e, err := ParseKey(key)
	if err != nil {
		return &InvalidTransitionError{Key: key, Action: ActionCreate, Reason: err.Error()}
	}
	if e.Path == ExternalPath {
		return &InvalidTransitionError{Key: key, Action: ActionCreate, Reason: "cannot create an external placeholder"}
	}
	_, err = tx.Exec(
		`INSERT INTO entities (key, language, kind, name, path, start_line, end_line,
		   signature, current_code, future_code, current_ind, future_ind, future_action)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?, FALSE, TRUE, 'create')`,
		e.Key, e.Language, e.Kind, e.Name, e.Path, e.StartLine, e.EndLine, newCode)
	if err != nil {
		return fmt.Errorf("propose create %s: %w", key, err)
	}
	return nil
}

func (s *Store) proposeOnExisting(tx *sql.Tx, key string, action FutureAction, newCode string, existing *Entity, override bool) error {
	if existing == nil || !existing.CurrentInd {
		return &InvalidTransitionError{Key: key, Action: action, Reason: "entity does not exist"}
	}
	if existing.Pending() && !override {
		return &InvalidTransitionError{
			Key: key, State: existing.FutureAction, Action: action,
			Reason: "entity already pending; pass override to replace",
		}
	}

	switch action {
	case ActionEdit:
		if newCode == "" {
			return &InvalidTransitionError{Key: key, Action: action, Reason: "edit requires future code"}
		}
		_, err := tx.Exec(
			`UPDATE entities SET future_code = ?, future_ind = TRUE, future_action = 'edit'
			 WHERE key = ?`, newCode, key)
		if err != nil {
			return fmt.Errorf("propose edit %s: %w", key, err)
		}
	case ActionDelete:
		// future_code is cleared for deletes by invariant.
		_, err := tx.Exec(
			`UPDATE entities SET future_code = '', future_ind = FALSE, future_action = 'delete'
			 WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("propose delete %s: %w", key, err)
		}
	}
	return nil
}

// Revert resets a pending entity back to Unchanged: future fields mirror
// current fields again. Reverting a PendingCreate removes the row, since
// the entity never existed in committed source. Reverting an entity that
// is not pending is a no-op.
func (s *Store) Revert(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("revert: begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := entityByKeyTx(tx, key)
	if err != nil {
		return fmt.Errorf("revert %s: %w", key, err)
	}
	if existing == nil {
		return &InvalidTransitionError{Key: key, Reason: "entity does not exist"}
	}
	if !existing.Pending() {
		return nil
	}

	if existing.FutureAction == ActionCreate {
		if _, err := tx.Exec(`DELETE FROM entities WHERE key = ?`, key); err != nil {
			return fmt.Errorf("revert %s: %w", key, err)
		}
	} else {
		_, err := tx.Exec(
			`UPDATE entities SET future_code = '', future_ind = current_ind, future_action = 'none'
			 WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("revert %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("revert %s: commit: %w", key, err)
	}
	return nil
}

// PromoteResult summarizes one promotion pass.
type PromoteResult struct {
	Created int
	Edited  int
	Deleted int
}

// PromoteAll commits every pending entity in a single transaction:
// PendingDelete rows (and their edges) are removed from the store
// entirely, PendingCreate/PendingEdit rows have current fields overwritten
// from future fields and the action cleared. All-or-nothing relative to a
// single call.
func (s *Store) PromoteAll() (*PromoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("promote: begin: %w", err)
	}
	defer tx.Rollback()

	res := &PromoteResult{}
	if err := tx.QueryRow(
		`SELECT
		   COUNT(*) FILTER (WHERE future_action = 'create'),
		   COUNT(*) FILTER (WHERE future_action = 'edit'),
		   COUNT(*) FILTER (WHERE future_action = 'delete')
		 FROM entities`,
	).Scan(&res.Created, &res.Edited, &res.Deleted); err != nil {
		return nil, fmt.Errorf("promote: count pending: %w", err)
	}

	// Deleted entities take their edges with them.
	if _, err := tx.Exec(
		`DELETE FROM edges WHERE from_key IN (SELECT key FROM entities WHERE future_action = 'delete')
		   OR to_key IN (SELECT key FROM entities WHERE future_action = 'delete')`); err != nil {
		return nil, fmt.Errorf("promote: delete edges: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entities WHERE future_action = 'delete'`); err != nil {
		return nil, fmt.Errorf("promote: delete entities: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE entities
		 SET current_code = future_code, future_code = '',
		     current_ind = TRUE, future_ind = TRUE, future_action = 'none'
		 WHERE future_action IN ('create', 'edit')`); err != nil {
		return nil, fmt.Errorf("promote: apply pending: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("promote: commit: %w", err)
	}
	return res, nil
}

func entityByKeyTx(tx *sql.Tx, key string) (*Entity, error) {
	row := tx.QueryRow(selectEntity+" WHERE key = ?", key)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}
