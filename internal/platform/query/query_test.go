package query

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloodbank/bloodbank/pkg/apperrors"
	"github.com/bloodbank/bloodbank/pkg/pagination"
)

var bookingsTable = Table{
	Name:             "bookings",
	Columns:          "id, booking_id, status",
	SearchColumns:    []string{"donor_name", "patient_name", "booking_id"},
	StatusColumn:     "status",
	BloodGroupColumn: "blood_group",
	DateColumn:       "date",
	OrderBy:          []exp.OrderedExpression{goqu.I("token_number").Asc()},
}

func TestBuild_RequiresHospital(t *testing.T) {
	_, err := Build(bookingsTable, Params{Status: "pending"})
	assert.ErrorIs(t, err, ErrMissingHospital)

	_, _, err = DataSQL(bookingsTable, Params{}, pagination.Default())
	assert.ErrorIs(t, err, ErrMissingHospital)

	_, _, err = CountSQL(bookingsTable, Params{})
	assert.ErrorIs(t, err, ErrMissingHospital)
}

func TestCountSQL_ScopeOnly(t *testing.T) {
	sql, args, err := CountSQL(bookingsTable, Params{HospitalID: "hosp-1"})
	require.NoError(t, err)

	assert.Contains(t, sql, `FROM "bookings"`)
	assert.Contains(t, sql, `"hospital_id" = $1`)
	assert.Contains(t, sql, `"deleted_at" IS NULL`)
	assert.Contains(t, sql, "COUNT(*)")
	assert.Equal(t, []interface{}{"hosp-1"}, args)
}

func TestDataSQL_AllFilters(t *testing.T) {
	day := time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC)
	p := Params{
		HospitalID: "hosp-1",
		Status:     "pending",
		BloodGroup: "O+",
		Search:     "ravi",
		Date:       &day,
		Extra:      map[string]interface{}{"donor_id": "d-9"},
	}
	sql, args, err := DataSQL(bookingsTable, p, pagination.Params{Page: 2, Limit: 10})
	require.NoError(t, err)

	assert.Contains(t, sql, "SELECT id, booking_id, status")
	assert.Contains(t, sql, `"status" = $2`)
	assert.Contains(t, sql, `"blood_group" = $3`)
	assert.Contains(t, sql, `"date" >= $4`)
	assert.Contains(t, sql, `"date" < $5`)
	assert.Contains(t, sql, `"donor_id" = $6`)
	assert.Contains(t, sql, `"donor_name" ILIKE $7`)
	assert.Contains(t, sql, `"patient_name" ILIKE $8`)
	assert.Contains(t, sql, `"booking_id" ILIKE $9`)
	assert.Contains(t, sql, " OR ")
	assert.Contains(t, sql, `ORDER BY "token_number" ASC`)
	assert.Contains(t, sql, "LIMIT")
	assert.Contains(t, sql, "OFFSET")

	require.GreaterOrEqual(t, len(args), 9)
	assert.Equal(t, "hosp-1", args[0])
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), args[3])
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), args[4])
	assert.Equal(t, "%ravi%", args[6])
}

func TestDataSQL_SearchIgnoredWithoutColumns(t *testing.T) {
	table := bookingsTable
	table.SearchColumns = nil
	sql, _, err := DataSQL(table, Params{HospitalID: "h", Search: "x"}, pagination.Default())
	require.NoError(t, err)
	assert.NotContains(t, sql, "ILIKE")
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%`, EscapeLike("50%"))
	assert.Equal(t, `a\_b`, EscapeLike("a_b"))
	assert.Equal(t, `c:\\d`, EscapeLike(`c:\d`))
	assert.Equal(t, "plain", EscapeLike("plain"))
}

func TestDayRange(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	start, end := DayRange(time.Date(2024, 3, 10, 23, 59, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, loc), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestParamsFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?status=available&blood_group=AB-&search=s1&date=2024-01-02", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	p, err := ParamsFromContext(c, "hosp-1")
	require.NoError(t, err)
	assert.Equal(t, "hosp-1", p.HospitalID)
	assert.Equal(t, "available", p.Status)
	assert.Equal(t, "AB-", p.BloodGroup)
	assert.Equal(t, "s1", p.Search)
	require.NotNil(t, p.Date)
	assert.Equal(t, 2, p.Date.Day())
}

func TestParamsFromContext_BadDate(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?date=02-01-2024", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	_, err := ParamsFromContext(c, "hosp-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
}
