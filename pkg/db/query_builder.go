package db

import (
	"fmt"
	"reflect"
	"strings"
)

// Select builder for natural-id lookups.
// Identifiers are passed through the builder's quoter; values are always bound as parameters.

// Operator represents SQL comparison operators
type Operator string

const (
	Equal     Operator = "="
	NotEqual  Operator = "!="
	In        Operator = "IN"
	NotIn     Operator = "NOT IN"
	IsNull    Operator = "IS NULL"
	IsNotNull Operator = "IS NOT NULL"
)

// LogicalOperator for combining conditions
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

// Condition represents a WHERE clause condition
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ConditionGroup represents grouped conditions with logical operators
type ConditionGroup struct {
	Conditions []any // Condition or nested *ConditionGroup
	Operator   LogicalOperator
}

// Quoter quotes an identifier for the target dialect
type Quoter func(identifier string) string

// SelectBuilder builds parameterized SELECT statements
type SelectBuilder struct {
	table      string
	selectCols []string
	where      *ConditionGroup
	orderBy    []string
	limit      int
	quote      Quoter
	forClause  string
}

// NewSelectBuilder creates a builder for table. A nil quoter leaves identifiers untouched.
func NewSelectBuilder(table string, quote Quoter) *SelectBuilder {
	if quote == nil {
		quote = func(s string) string { return s }
	}
	return &SelectBuilder{
		table:      table,
		selectCols: []string{"*"},
		where:      &ConditionGroup{Operator: And},
		quote:      quote,
	}
}

// Select sets the columns to select
func (b *SelectBuilder) Select(cols ...string) *SelectBuilder {
	b.selectCols = cols
	return b
}

// Where adds a WHERE condition
func (b *SelectBuilder) Where(field string, operator Operator, value any) *SelectBuilder {
	b.where.Where(field, operator, value)
	return b
}

// WhereGroup adds a grouped WHERE condition
func (b *SelectBuilder) WhereGroup(operator LogicalOperator, fn func(*ConditionGroup)) *SelectBuilder {
	b.where.Group(operator, fn)
	return b
}

// MatchAny adds one OR-ed group per row of values, each group AND-ing columns[i] against row[i].
// Nil values compare with IS NULL.
func (b *SelectBuilder) MatchAny(columns []string, rows [][]any) *SelectBuilder {
	if len(columns) == 1 {
		values := make([]any, 0, len(rows))
		hasNull := false
		for _, row := range rows {
			if row[0] == nil {
				hasNull = true
				continue
			}
			values = append(values, row[0])
		}
		return b.WhereGroup(Or, func(g *ConditionGroup) {
			if len(values) > 0 {
				g.Where(columns[0], In, values)
			}
			if hasNull {
				g.Where(columns[0], IsNull, nil)
			}
		})
	}

	return b.WhereGroup(Or, func(g *ConditionGroup) {
		for _, row := range rows {
			g.Group(And, func(inner *ConditionGroup) {
				for i, col := range columns {
					if row[i] == nil {
						inner.Where(col, IsNull, nil)
					} else {
						inner.Where(col, Equal, row[i])
					}
				}
			})
		}
	})
}

// OrderBy adds an ORDER BY clause
func (b *SelectBuilder) OrderBy(field string, desc bool) *SelectBuilder {
	order := b.quote(field)
	if desc {
		order += " DESC"
	} else {
		order += " ASC"
	}
	b.orderBy = append(b.orderBy, order)
	return b
}

// Limit sets the LIMIT clause
// Negative values are normalized to 0
func (b *SelectBuilder) Limit(limit int) *SelectBuilder {
	if limit < 0 {
		limit = 0
	}
	b.limit = limit
	return b
}

// For appends a locking clause such as "FOR UPDATE"
func (b *SelectBuilder) For(clause string) *SelectBuilder {
	b.forClause = clause
	return b
}

// Where adds a condition to the group
func (g *ConditionGroup) Where(field string, operator Operator, value any) *ConditionGroup {
	g.Conditions = append(g.Conditions, Condition{
		Field:    field,
		Operator: operator,
		Value:    value,
	})
	return g
}

// Group adds a nested condition group
func (g *ConditionGroup) Group(operator LogicalOperator, fn func(*ConditionGroup)) *ConditionGroup {
	group := &ConditionGroup{Operator: operator}
	fn(group)
	g.Conditions = append(g.Conditions, group)
	return g
}

// BuildSelect builds the SELECT statement and its arguments
func (b *SelectBuilder) BuildSelect() (string, []any) {
	var query strings.Builder
	var args []any

	cols := make([]string, len(b.selectCols))
	for i, col := range b.selectCols {
		if col == "*" {
			cols[i] = col
		} else {
			cols[i] = b.quote(col)
		}
	}

	query.WriteString("SELECT ")
	query.WriteString(strings.Join(cols, ", "))
	query.WriteString(" FROM ")
	query.WriteString(b.quote(b.table))

	if whereSQL, whereArgs := b.buildConditionGroup(b.where); whereSQL != "" {
		query.WriteString(" WHERE ")
		query.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}

	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(b.orderBy, ", "))
	}

	if b.limit > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT %d", b.limit))
	}

	if b.forClause != "" {
		query.WriteString(" ")
		query.WriteString(b.forClause)
	}

	return query.String(), args
}

// buildConditionGroup builds SQL for a condition group with proper logical operators
func (b *SelectBuilder) buildConditionGroup(group *ConditionGroup) (string, []any) {
	var conditions []string
	var args []any

	for _, item := range group.Conditions {
		switch cond := item.(type) {
		case Condition:
			condSQL, condArgs := b.buildCondition(cond)
			conditions = append(conditions, condSQL)
			args = append(args, condArgs...)
		case *ConditionGroup:
			groupSQL, groupArgs := b.buildConditionGroup(cond)
			if groupSQL == "" {
				continue
			}
			if len(cond.Conditions) > 1 && len(group.Conditions) > 1 {
				groupSQL = "(" + groupSQL + ")"
			}
			conditions = append(conditions, groupSQL)
			args = append(args, groupArgs...)
		}
	}

	return strings.Join(conditions, " "+string(group.Operator)+" "), args
}

// buildCondition builds SQL for a single condition
func (b *SelectBuilder) buildCondition(cond Condition) (string, []any) {
	field := b.quote(cond.Field)
	switch cond.Operator {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", field, cond.Operator), nil
	case In, NotIn:
		return b.buildInCondition(field, cond)
	default:
		return fmt.Sprintf("%s %s ?", field, cond.Operator), []any{cond.Value}
	}
}

// buildInCondition builds IN/NOT IN conditions with placeholder expansion
func (b *SelectBuilder) buildInCondition(field string, cond Condition) (string, []any) {
	v := reflect.ValueOf(cond.Value)
	if cond.Value == nil || ((v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && v.Len() == 0) {
		// Empty set never matches IN and always matches NOT IN
		if cond.Operator == In {
			return "1 = 0", nil
		}
		return "1 = 1", nil
	}

	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Sprintf("%s %s (?)", field, cond.Operator), []any{cond.Value}
	}

	placeholders := make([]string, v.Len())
	args := make([]any, v.Len())
	for i := range placeholders {
		placeholders[i] = "?"
		args[i] = v.Index(i).Interface()
	}
	return fmt.Sprintf("%s %s (%s)", field, cond.Operator, strings.Join(placeholders, ", ")), args
}
