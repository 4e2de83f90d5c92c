package query

import (
	"fmt"
	"regexp"
	"strings"
)

// Renderer is implemented by every statement node (Insert, Select,
// ContinuousQuery); tsdb depends only on this method, not on the
// concrete AST types.
type Renderer interface {
	Render() string
}

// Keyword distinguishes a SELECT statement from a DELETE statement; both
// share the same Select node because DELETE is structurally a constrained
// SELECT (no INTO, no field list, no GROUP/ORDER/LIMIT).
type Keyword string

const (
	KeywordSelect Keyword = "SELECT"
	KeywordDelete Keyword = "DELETE"
)

// Select is the node kind for both SELECT and DELETE statements. From and
// FromNested are mutually exclusive: a nested sub-query source is only
// permitted when Keyword is SELECT.
type Select struct {
	Keyword    Keyword
	Fields     []string
	Into       string
	From       string
	FromNested *Select
	Where      string
	GroupBy    []string
	Order      string // "ASC", "DESC", or "" for unspecified
	Limit      int
	SLimit     int
}

// ConstructionError reports a Select/CQ that violates one of the AST's
// construction invariants (§4.B, §7 category "schema violation").
type ConstructionError struct {
	Reason string
}

func (e *ConstructionError) Error() string {
	return "query: " + e.Reason
}

// NewSelect validates the DELETE and nested-source invariants before
// returning the node: DELETE forbids INTO/fields/GROUP BY/ORDER BY/LIMIT,
// and a nested sub-query source is only allowed when Keyword is SELECT.
func NewSelect(s Select) (*Select, error) {
	if s.Keyword == "" {
		s.Keyword = KeywordSelect
	}
	if s.Keyword == KeywordDelete {
		if s.Into != "" || len(s.Fields) > 0 || len(s.GroupBy) > 0 || s.Order != "" || s.Limit != 0 || s.SLimit != 0 {
			return nil, &ConstructionError{Reason: "DELETE forbids INTO, fields, GROUP BY, ORDER BY, and LIMIT/SLIMIT"}
		}
	}
	if s.FromNested != nil && s.Keyword != KeywordSelect {
		return nil, &ConstructionError{Reason: "a nested sub-query source requires keyword SELECT"}
	}
	return &s, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// Render produces the final statement text: clauses are concatenated in
// fixed order (keyword, field list, INTO, FROM, WHERE, GROUP BY, ORDER BY,
// LIMIT, SLIMIT) and the result is whitespace-collapsed, so callers never
// need to worry about clause spacing.
func (s *Select) Render() string {
	var b strings.Builder
	b.WriteString(string(s.Keyword))
	b.WriteString(" ")

	if s.Keyword == KeywordSelect {
		if len(s.Fields) == 0 {
			b.WriteString("*")
		} else {
			b.WriteString(strings.Join(s.Fields, ", "))
		}
	}

	if s.Into != "" {
		b.WriteString(" INTO ")
		b.WriteString(s.Into)
	}

	b.WriteString(" FROM ")
	if s.FromNested != nil {
		b.WriteString("(")
		b.WriteString(s.FromNested.Render())
		b.WriteString(")")
	} else {
		b.WriteString(s.From)
	}

	if s.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(s.Where)
	}

	if len(s.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(s.GroupBy, ", "))
	}

	if s.Order != "" {
		b.WriteString(" ORDER BY time ")
		b.WriteString(s.Order)
	}

	if s.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", s.Limit)
	}
	if s.SLimit > 0 {
		fmt.Fprintf(&b, " SLIMIT %d", s.SLimit)
	}

	return collapseWhitespace(b.String())
}

// Qualify joins non-empty name parts with ".", producing the
// <rp>.<measurement> or <db>.<rp>.<measurement> qualified names used as
// FROM/INTO targets throughout the catalog and copy_database.
func Qualify(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}
