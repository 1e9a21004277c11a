package store

import "fmt"

// ReadEntities returns all entities matching the predicate, ascending by
// key. An empty filter returns everything. Read-only; malformed filters
// fail with *QueryError before any row is scanned.
func (s *Store) ReadEntities(filter string) ([]*Entity, error) {
	pred, err := ParsePredicate(filter, EntityFields)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(selectEntity + " ORDER BY key ASC")
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("read entities: %w", err)
		}
		if pred.Match(e.fieldMap()) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

// ReadEdges returns all edges matching the predicate, ordered by
// (from_key, to_key, edge_type) for determinism.
func (s *Store) ReadEdges(filter string) ([]*Edge, error) {
	pred, err := ParsePredicate(filter, EdgeFields)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, from_key, to_key, edge_type FROM edges
		 ORDER BY from_key ASC, to_key ASC, edge_type ASC`)
	if err != nil {
		return nil, fmt.Errorf("read edges: %w", err)
	}
	defer rows.Close()

	var out []*Edge
	for rows.Next() {
		e := &Edge{}
		if err := rows.Scan(&e.ID, &e.FromKey, &e.ToKey, &e.Type); err != nil {
			return nil, fmt.Errorf("read edges: %w", err)
		}
		if pred.Match(e.fieldMap()) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}
