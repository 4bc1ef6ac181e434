package database

import "strings"

// PageSize caps every list query
const PageSize = 100

// Sort is a whitelisted ORDER BY clause
type Sort struct {
	Column string
	Desc   bool
}

// ParseSort resolves user supplied sort and order parameters against columns.
// An unknown key falls back to def. An empty or unknown order keeps the
// column's natural direction.
func ParseSort(columns map[string]Sort, key, order, def string) Sort {
	s, ok := columns[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		s = columns[def]
	}
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "asc":
		s.Desc = false
	case "desc":
		s.Desc = true
	}
	return s
}

// SQL renders the clause with id as a tiebreaker so pages are stable
func (s Sort) SQL() string {
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return s.Column + " " + dir + ", id " + dir
}
