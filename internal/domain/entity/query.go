package entity

import "slices"

// Query is the part of an outbound data-layer query the engine may extend.
type Query interface {
	SelectsAll() bool
	Columns() []string
	AddColumns(names ...string)
	HasEagerLoad(name string) bool
	AddEagerLoad(names ...string)
}

// SelectQuery is a minimal Query: a projection plus eager loads.
// An empty projection means "all columns".
type SelectQuery struct {
	table     string
	columns   []string
	eagerLoad []string
}

// NewSelectQuery creates a query over table selecting the given columns.
func NewSelectQuery(table string, columns ...string) *SelectQuery {
	q := &SelectQuery{table: table}
	q.AddColumns(columns...)
	return q
}

// Table returns the queried table.
func (q *SelectQuery) Table() string { return q.table }

// SelectsAll reports whether the projection is "*".
func (q *SelectQuery) SelectsAll() bool {
	return len(q.columns) == 0 || slices.Contains(q.columns, "*")
}

// Columns returns the projection.
func (q *SelectQuery) Columns() []string { return slices.Clone(q.columns) }

// AddColumns appends columns not already selected.
func (q *SelectQuery) AddColumns(names ...string) {
	for _, n := range names {
		if n != "" && !slices.Contains(q.columns, n) {
			q.columns = append(q.columns, n)
		}
	}
}

// HasEagerLoad reports whether a relation is already eager-loaded.
func (q *SelectQuery) HasEagerLoad(name string) bool {
	return slices.Contains(q.eagerLoad, name)
}

// AddEagerLoad appends relations not already eager-loaded.
func (q *SelectQuery) AddEagerLoad(names ...string) {
	for _, n := range names {
		if n != "" && !q.HasEagerLoad(n) {
			q.eagerLoad = append(q.eagerLoad, n)
		}
	}
}

// EagerLoads returns the eager-loaded relations.
func (q *SelectQuery) EagerLoads() []string { return slices.Clone(q.eagerLoad) }
