package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm query before it is executed by a repository.
type QueryOption func(db *gorm.DB) *gorm.DB

// LockingUpdate is a gorm scope adding SELECT ... FOR UPDATE. Dialects without row
// locks (sqlite) drop the clause.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := s.SortBy
		if column == "" || (s.Allow != nil && !s.Allow[column]) {
			column = "created_at"
		}

		desc := strings.EqualFold(s.OrderBy, "desc")
		return db.Order(clause.OrderByColumn{
			Column: clause.Column{Name: column},
			Desc:   desc,
		})
	}
}

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		switch c.Operator {
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", quote(db, c.Field)), c.Value)
		case EQ, NEQ, GT, GTE, LT, LTE:
			return db.Where(fmt.Sprintf("%s %s ?", quote(db, c.Field), c.Operator), c.Value)
		default:
			_ = db.AddError(fmt.Errorf("unsupported operator %q", c.Operator))
			return db
		}
	}
}

// Equal filters on field = value. Unlike a struct condition it keeps zero values, so an
// id of 0 matches nothing instead of every row.
func Equal(field string, value any) QueryOption {
	return ApplyOperator(Condition{Field: field, Operator: EQ, Value: value})
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

func WithPreload(association string, args ...any) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Preload(association, args...)
	}
}

func quote(db *gorm.DB, field string) string {
	var b strings.Builder
	db.Dialector.QuoteTo(&b, field)
	return b.String()
}
