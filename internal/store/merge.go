package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// MergeBatch merges one file's extraction output in a single transaction.
//
// Semantics:
//   - Two entities producing the same key inside one batch abort the whole
//     batch with *KeyCollisionError.
//   - Keys previously extracted from this file but absent from the batch
//     are superseded: the rows and their outbound edges are removed, and
//     inbound edges from other files are downgraded to external
//     placeholders. PendingCreate rows survive, since they were never part
//     of committed source.
//   - A re-ingested key that already exists keeps its pending future state;
//     only the current fields are refreshed. A re-ingested PendingCreate
//     becomes a PendingEdit: the entity now exists in committed source.
//   - Edges originating from this file's entities are replaced wholesale.
func (s *Store) MergeBatch(batch *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("merge %s: begin: %w", batch.File.Path, err)
	}
	defer tx.Rollback()

	newKeys := make(map[string]bool, len(batch.Entities))
	for i := range batch.Entities {
		e := &batch.Entities[i]
		if newKeys[e.Key] {
			return &KeyCollisionError{Key: e.Key, Path: batch.File.Path}
		}
		newKeys[e.Key] = true
	}

	if err := supersedeStaleKeys(tx, batch.File.Path, newKeys); err != nil {
		return fmt.Errorf("merge %s: %w", batch.File.Path, err)
	}

	for i := range batch.Entities {
		if err := upsertEntity(tx, &batch.Entities[i]); err != nil {
			return fmt.Errorf("merge %s: entity %s: %w", batch.File.Path, batch.Entities[i].Key, err)
		}
	}

	if err := replaceFileEdges(tx, newKeys, batch.Edges); err != nil {
		return fmt.Errorf("merge %s: %w", batch.File.Path, err)
	}

	if _, err := tx.Exec(
		`INSERT INTO files (path, language, hash, line_count, last_ingested)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   language = excluded.language, hash = excluded.hash,
		   line_count = excluded.line_count, last_ingested = excluded.last_ingested`,
		batch.File.Path, batch.File.Language, batch.File.Hash,
		batch.File.LineCount, batch.File.LastIngested); err != nil {
		return fmt.Errorf("merge %s: file record: %w", batch.File.Path, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("merge %s: commit: %w", batch.File.Path, err)
	}
	return nil
}

// supersedeStaleKeys removes committed entities of a file whose keys are not
// in the new key set. Outbound edges go with the entity; inbound edges from
// other files are downgraded back to external placeholders, since those
// callers are hash-skipped on re-ingest and would otherwise lose the
// dependency for good.
func supersedeStaleKeys(tx *sql.Tx, path string, newKeys map[string]bool) error {
	rows, err := tx.Query(
		`SELECT key FROM entities WHERE path = ? AND current_ind = TRUE`, path)
	if err != nil {
		return fmt.Errorf("list stale keys: %w", err)
	}
	var stale []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return fmt.Errorf("list stale keys: %w", err)
		}
		if !newKeys[key] {
			stale = append(stale, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list stale keys: %w", err)
	}

	for _, key := range stale {
		if _, err := tx.Exec(`DELETE FROM edges WHERE from_key = ?`, key); err != nil {
			return fmt.Errorf("delete stale edges %s: %w", key, err)
		}
		if err := downgradeInboundEdges(tx, key); err != nil {
			return fmt.Errorf("downgrade stale edges %s: %w", key, err)
		}
		if _, err := tx.Exec(`DELETE FROM entities WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete stale entity %s: %w", key, err)
		}
	}
	return nil
}

// downgradeInboundEdges re-points edges targeting a superseded key back to
// the external placeholder for its name, so the dependency survives and
// ResolveEdges can re-point it if the symbol reappears under a new key.
func downgradeInboundEdges(tx *sql.Tx, stale string) error {
	parsed, err := ParseKey(stale)
	if err != nil {
		// Unparseable key: nothing to build a placeholder from.
		_, derr := tx.Exec(`DELETE FROM edges WHERE to_key = ?`, stale)
		return derr
	}
	placeholder := ExternalKey(parsed.Language, parsed.Kind, parsed.Name)

	rows, err := tx.Query(`SELECT id FROM edges WHERE to_key = ?`, stale)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE edges SET to_key = ? WHERE id = ?`, placeholder, id); err != nil {
			// The caller may already hold the placeholder edge.
			if isUniqueViolation(err) {
				if _, derr := tx.Exec(`DELETE FROM edges WHERE id = ?`, id); derr != nil {
					return derr
				}
				continue
			}
			return err
		}
	}
	return nil
}

func upsertEntity(tx *sql.Tx, e *Entity) error {
	existing, err := entityByKeyTx(tx, e.Key)
	if err != nil {
		return err
	}
	if existing != nil {
		// A pending create whose key now appears in committed source is no
		// longer a create: the entity exists. It becomes a pending edit
		// carrying the same proposed code.
		if existing.FutureAction == ActionCreate {
			_, err := tx.Exec(
				`UPDATE entities SET signature = ?, current_code = ?,
				   current_ind = TRUE, future_ind = TRUE, future_action = 'edit'
				 WHERE key = ?`, e.Signature, e.CurrentCode, e.Key)
			return err
		}
		// Refresh current fields only; a pending edit or delete on the
		// same key survives re-ingestion (last-writer-wins applies to
		// proposals, not to ingestion).
		_, err := tx.Exec(
			`UPDATE entities SET signature = ?, current_code = ?, current_ind = TRUE
			 WHERE key = ?`, e.Signature, e.CurrentCode, e.Key)
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO entities (key, language, kind, name, path, start_line, end_line,
		   signature, current_code, future_code, current_ind, future_ind, future_action)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', TRUE, TRUE, 'none')`,
		e.Key, e.Language, e.Kind, e.Name, e.Path, e.StartLine, e.EndLine,
		e.Signature, e.CurrentCode)
	return err
}

// replaceFileEdges deletes all edges originating from this batch's entities
// and inserts the new edge set.
func replaceFileEdges(tx *sql.Tx, fromKeys map[string]bool, edges []Edge) error {
	for key := range fromKeys {
		if _, err := tx.Exec(`DELETE FROM edges WHERE from_key = ?`, key); err != nil {
			return fmt.Errorf("delete edges from %s: %w", key, err)
		}
	}
	for _, edge := range edges {
		if _, err := tx.Exec(
			`INSERT INTO edges (from_key, to_key, edge_type) VALUES (?, ?, ?)
			 ON CONFLICT(from_key, to_key, edge_type) DO NOTHING`,
			edge.FromKey, edge.ToKey, edge.Type); err != nil {
			return fmt.Errorf("insert edge %s -> %s: %w", edge.FromKey, edge.ToKey, err)
		}
	}
	return nil
}

// ResolveEdges re-points external placeholder edges whose symbol name now
// matches a stored entity. Runs after all batches of an ingestion have
// merged, so cross-file targets resolve. Deterministic: when several
// entities share a name, the lowest key wins. Returns the number of edges
// resolved.
func (s *Store) ResolveEdges() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("resolve edges: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id, to_key FROM edges WHERE to_key LIKE '%:` + ExternalPath + `:0' ORDER BY id`)
	if err != nil {
		return 0, fmt.Errorf("resolve edges: %w", err)
	}
	type unresolved struct {
		id    int64
		toKey string
	}
	var pending []unresolved
	for rows.Next() {
		var u unresolved
		if err := rows.Scan(&u.id, &u.toKey); err != nil {
			rows.Close()
			return 0, fmt.Errorf("resolve edges: %w", err)
		}
		pending = append(pending, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("resolve edges: %w", err)
	}

	resolved := 0
	for _, u := range pending {
		target, err := ParseKey(u.toKey)
		if err != nil {
			continue // malformed placeholder, leave as-is
		}
		var key string
		err = tx.QueryRow(
			`SELECT key FROM entities
			 WHERE name = ? AND language = ? AND kind IN ('function', 'method')
			   AND path != ? AND current_ind = TRUE
			 ORDER BY key ASC LIMIT 1`,
			// Names are sanitized in keys; compare against the same form.
			target.Name, target.Language, ExternalPath,
		).Scan(&key)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("resolve edges: lookup %s: %w", target.Name, err)
		}
		if _, err := tx.Exec(
			`UPDATE edges SET to_key = ? WHERE id = ?`, key, u.id); err != nil {
			// UNIQUE(from_key,to_key,edge_type) may already hold the
			// resolved edge; drop the placeholder duplicate.
			if isUniqueViolation(err) {
				if _, derr := tx.Exec(`DELETE FROM edges WHERE id = ?`, u.id); derr != nil {
					return 0, fmt.Errorf("resolve edges: dedupe: %w", derr)
				}
				continue
			}
			return 0, fmt.Errorf("resolve edges: update: %w", err)
		}
		resolved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("resolve edges: commit: %w", err)
	}
	return resolved, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
