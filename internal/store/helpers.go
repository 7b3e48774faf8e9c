package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Helper functions for null-safe SQL operations.

func ptrString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func ptrInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	i := ni.Int64
	return &i
}

func ptrBool(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	b := nb.Bool
	return &b
}

func rawJSON(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func jsonText(v any) string {
	if v == nil {
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func nullText(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ListOptions controls listing queries. Page is one-based; a zero Limit
// disables paging. OrderColumn must name an entity column and is checked
// against the table's column list before use.
type ListOptions struct {
	Limit       int
	Page        int
	OrderColumn string
	OrderMethod string
}

func (o ListOptions) orderClause(columns []string, fallback string) string {
	col := fallback
	for _, c := range columns {
		if c == o.OrderColumn {
			col = o.OrderColumn
			break
		}
	}
	method := "ASC"
	if strings.EqualFold(o.OrderMethod, "DESC") {
		method = "DESC"
	}
	return fmt.Sprintf(` ORDER BY "%s" %s`, col, method)
}

func (o ListOptions) limitClause() (string, []any) {
	if o.Limit <= 0 {
		return "", nil
	}
	page := o.Page
	if page < 1 {
		page = 1
	}
	return " LIMIT ? OFFSET ?", []any{o.Limit, (page - 1) * o.Limit}
}

// buildSet turns a column document into a SET clause, keeping only keys
// that name a real column and never touching the identity columns.
func buildSet(doc map[string]any, columns []string) (string, []any) {
	var parts []string
	var args []any
	for _, c := range columns {
		val, ok := doc[c]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf(`"%s" = ?`, c))
		args = append(args, val)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, ", "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
