package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/ammar0144/natid4go/pkg/db"
	"github.com/ammar0144/natid4go/pkg/naturalid"
)

var deletedAtType = reflect.TypeOf(gorm.DeletedAt{})

// GormStore resolves and materializes entities of type T through GORM
type GormStore[T any] struct {
	manager   *db.Manager
	table     string
	pkColumn  string
	columns   []string // natural-id columns, ordered like the mapping attributes
	deletedAt string   // soft-delete column, if the model has one
	foldCase  bool     // the configured collation compares strings case-insensitively
}

// NewGorm binds the natural-id mapping m to the GORM schema of T
func NewGorm[T any](manager *db.Manager, m *naturalid.Mapping) (*GormStore[T], error) {
	if manager == nil {
		return nil, fmt.Errorf("db manager cannot be nil")
	}

	stmt := &gorm.Statement{DB: manager.DB()}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("failed to parse schema of %T: %w", *new(T), err)
	}
	sch := stmt.Schema
	if sch.PrioritizedPrimaryField == nil {
		return nil, fmt.Errorf("%s has no primary key", sch.Name)
	}

	s := &GormStore[T]{
		manager:  manager,
		table:    sch.Table,
		pkColumn: sch.PrioritizedPrimaryField.DBName,
		foldCase: strings.HasSuffix(strings.ToLower(manager.Config().Collation), "_ci"),
	}
	for _, attr := range m.Attributes() {
		column, err := columnFor(sch, attr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.EntityName(), err)
		}
		s.columns = append(s.columns, column)
	}
	for _, field := range sch.Fields {
		if field.FieldType == deletedAtType {
			s.deletedAt = field.DBName
		}
	}
	return s, nil
}

func columnFor(sch *schema.Schema, attr naturalid.Attribute) (string, error) {
	if attr.Column != "" {
		return attr.Column, nil
	}
	if field := sch.LookUpField(attr.Name); field != nil && field.DBName != "" {
		return field.DBName, nil
	}
	return "", fmt.Errorf("no column for natural-id attribute %q", attr.Name)
}

// Table returns the table backing the store
func (s *GormStore[T]) Table() string {
	return s.table
}

// ResolveIDs selects the identifier and natural-id columns of every matching row in one query
func (s *GormStore[T]) ResolveIDs(ctx context.Context, m *naturalid.Mapping, tuples []naturalid.Tuple) ([]any, error) {
	ids := make([]any, len(tuples))
	if len(tuples) == 0 {
		return ids, nil
	}

	ctx, cancel := s.manager.WithQueryTimeout(ctx)
	defer cancel()

	rows := make([][]any, len(tuples))
	for i, tuple := range tuples {
		rows[i] = tuple
	}

	tx := s.manager.DB().WithContext(ctx)
	builder := db.NewSelectBuilder(s.table, func(name string) string { return tx.Statement.Quote(name) }).
		Select(append([]string{s.pkColumn}, s.columns...)...).
		MatchAny(s.columns, rows)
	if s.deletedAt != "" {
		builder.Where(s.deletedAt, db.IsNull, nil)
	}
	query, args := builder.BuildSelect()

	var found []T
	if err := tx.Raw(query, args...).Scan(&found).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	// rows are matched back to tuples by exact value first. A row no tuple claims
	// exactly was matched by the column collation, e.g. NEO for neo under a _ci
	// collation; with a _ci collation configured, claimed rows match case variants too.
	type row struct {
		tuple   naturalid.Tuple
		id      any
		claimed bool
	}
	rowsByKey := make(map[string]*row, len(found))
	var matched []*row
	for i := range found {
		tuple, err := m.Extract(&found[i])
		if err != nil {
			return nil, err
		}
		key, err := tuple.Encode()
		if err != nil {
			return nil, err
		}
		id, err := m.ExtractID(&found[i])
		if err != nil {
			return nil, err
		}
		r := &row{tuple: tuple, id: id}
		rowsByKey[string(key)] = r
		matched = append(matched, r)
	}

	var unresolved []int
	for i, tuple := range tuples {
		key, err := tuple.Encode()
		if err != nil {
			return nil, err
		}
		if r, ok := rowsByKey[string(key)]; ok {
			r.claimed = true
			ids[i] = r.id
			continue
		}
		unresolved = append(unresolved, i)
	}

	for _, i := range unresolved {
		for _, r := range matched {
			if (!r.claimed || s.foldCase) && foldEqual(r.tuple, tuples[i]) {
				ids[i] = r.id
				break
			}
		}
	}
	return ids, nil
}

// foldEqual compares tuples with strings compared case-insensitively
func foldEqual(a, b naturalid.Tuple) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		as, aok := a[i].(string)
		bs, bok := b[i].(string)
		if aok && bok {
			if !strings.EqualFold(as, bs) {
				return false
			}
			continue
		}
		if !(naturalid.Tuple{a[i]}).Equal(naturalid.Tuple{b[i]}) {
			return false
		}
	}
	return true
}

// Materialize loads entities by primary key, applying the requested row lock
func (s *GormStore[T]) Materialize(ctx context.Context, m *naturalid.Mapping, ids []any, lock LockOptions) ([]*T, error) {
	out := make([]*T, len(ids))

	wanted := make([]any, 0, len(ids))
	for _, id := range ids {
		if id != nil {
			wanted = append(wanted, id)
		}
	}
	if len(wanted) == 0 {
		return out, nil
	}

	var cancel context.CancelFunc
	if lock.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, lock.Timeout)
	} else {
		ctx, cancel = s.manager.WithQueryTimeout(ctx)
	}
	defer cancel()

	tx := s.manager.DB().WithContext(ctx)
	if locking, ok := lockingClause(lock); ok {
		tx = tx.Clauses(locking)
	}

	var rows []T
	err := tx.Where(clause.IN{Column: clause.Column{Name: s.pkColumn}, Values: wanted}).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	byID := make(map[string]*T, len(rows))
	for i := range rows {
		id, err := m.ExtractID(&rows[i])
		if err != nil {
			return nil, err
		}
		key, err := idKey(id)
		if err != nil {
			return nil, err
		}
		byID[key] = &rows[i]
	}

	for i, id := range ids {
		if id == nil {
			continue
		}
		key, err := idKey(id)
		if err != nil {
			return nil, err
		}
		out[i] = byID[key]
	}
	return out, nil
}

func lockingClause(lock LockOptions) (clause.Locking, bool) {
	var locking clause.Locking
	switch lock.Mode {
	case LockPessimisticWrite:
		locking.Strength = clause.LockingStrengthUpdate
	case LockPessimisticRead:
		locking.Strength = clause.LockingStrengthShare
	default:
		return locking, false
	}
	if lock.NoWait {
		locking.Options = clause.LockingOptionsNoWait
	}
	return locking, true
}

// Insert creates the entity row
func (s *GormStore[T]) Insert(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	ctx, cancel := s.manager.WithQueryTimeout(ctx)
	defer cancel()

	if err := s.manager.DB().WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// Update saves every column of the entity row
func (s *GormStore[T]) Update(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	ctx, cancel := s.manager.WithQueryTimeout(ctx)
	defer cancel()

	if err := s.manager.DB().WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// Delete removes the entity row by primary key
func (s *GormStore[T]) Delete(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	ctx, cancel := s.manager.WithQueryTimeout(ctx)
	defer cancel()

	if err := s.manager.DB().WithContext(ctx).Delete(entity).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}
