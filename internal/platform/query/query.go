// Package query turns role-scoped list parameters into hospital-filtered
// SQL. Every list endpoint goes through Build so the hospital_id and
// soft-delete predicates cannot be forgotten.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/bloodbank/bloodbank/internal/platform/db"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

var dialect = goqu.Dialect("postgres")

// ErrMissingHospital is returned when a filter is built without a hospital id.
var ErrMissingHospital = errors.New("query: hospital_id is required")

// Table describes one list endpoint.
type Table struct {
	Name             string
	Columns          string
	SearchColumns    []string
	StatusColumn     string
	BloodGroupColumn string
	DateColumn       string
	OrderBy          []exp.OrderedExpression
}

type Params struct {
	HospitalID string
	Status     string
	BloodGroup string
	Search     string
	Date       *time.Time
	// Extra adds equality predicates, e.g. {"type": "plasma"}.
	Extra map[string]interface{}
}

// Build returns the filtered dataset for t. The result always ANDs
// hospital_id and deleted_at IS NULL with the optional clauses, plus one OR
// group for free-text search.
func Build(t Table, p Params) (*goqu.SelectDataset, error) {
	if p.HospitalID == "" {
		return nil, ErrMissingHospital
	}

	where := []exp.Expression{
		goqu.C("hospital_id").Eq(p.HospitalID),
		goqu.C("deleted_at").IsNull(),
	}
	if p.Status != "" && t.StatusColumn != "" {
		where = append(where, goqu.C(t.StatusColumn).Eq(p.Status))
	}
	if p.BloodGroup != "" && t.BloodGroupColumn != "" {
		where = append(where, goqu.C(t.BloodGroupColumn).Eq(p.BloodGroup))
	}
	if p.Date != nil && t.DateColumn != "" {
		start, end := DayRange(*p.Date)
		where = append(where,
			goqu.C(t.DateColumn).Gte(start),
			goqu.C(t.DateColumn).Lt(end),
		)
	}

	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		where = append(where, goqu.C(k).Eq(p.Extra[k]))
	}

	if s := strings.TrimSpace(p.Search); s != "" && len(t.SearchColumns) > 0 {
		pattern := "%" + EscapeLike(s) + "%"
		or := make([]exp.Expression, 0, len(t.SearchColumns))
		for _, col := range t.SearchColumns {
			or = append(or, goqu.C(col).ILike(pattern))
		}
		where = append(where, goqu.Or(or...))
	}

	return dialect.From(t.Name).Where(where...), nil
}

// DataSQL renders one page of rows.
func DataSQL(t Table, p Params, page pagination.Params) (string, []interface{}, error) {
	ds, err := Build(t, p)
	if err != nil {
		return "", nil, err
	}
	ds = ds.Select(goqu.L(t.Columns))
	if len(t.OrderBy) > 0 {
		ds = ds.Order(t.OrderBy...)
	}
	ds = ds.Limit(uint(page.Limit)).Offset(uint(page.Offset()))
	return ds.Prepared(true).ToSQL()
}

// CountSQL renders the total row count for the filter.
func CountSQL(t Table, p Params) (string, []interface{}, error) {
	ds, err := Build(t, p)
	if err != nil {
		return "", nil, err
	}
	return ds.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
}

// List runs the count and data queries for t and scans every row.
func List[T any](ctx context.Context, q db.Querier, t Table, p Params, page pagination.Params, scan func(pgx.Row) (T, error)) ([]T, int, error) {
	countSQL, countArgs, err := CountSQL(t, p)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", t.Name, err)
	}

	dataSQL, dataArgs, err := DataSQL(t, p, page)
	if err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", t.Name, err)
	}
	defer rows.Close()

	items := make([]T, 0, page.Limit)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// DayRange expands t to [start of day, start of next day) in t's location.
func DayRange(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE metacharacters so user input matches literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

const DateLayout = "2006-01-02"

// ParamsFromContext reads the shared list filters from the query string.
// The hospital id is supplied by the caller from its scope.
func ParamsFromContext(c echo.Context, hospitalID string) (Params, error) {
	p := Params{
		HospitalID: hospitalID,
		Status:     c.QueryParam("status"),
		BloodGroup: c.QueryParam("bloodGroup"),
		Search:     c.QueryParam("search"),
	}
	if p.BloodGroup == "" {
		p.BloodGroup = c.QueryParam("blood_group")
	}
	if raw := c.QueryParam("date"); raw != "" {
		d, err := time.Parse(DateLayout, raw)
		if err != nil {
			return Params{}, apperrors.Validation("date must be YYYY-MM-DD")
		}
		p.Date = &d
	}
	return p, nil
}
