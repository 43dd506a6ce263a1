package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// monthParam returns the `month` query param, defaulting to the current month.
func monthParam(ctx echo.Context) string {
	if month := core.CleanString(ctx.QueryParam("month")); month != "" {
		return month
	}
	return attendance.CurrentMonth()
}

// dateParam returns the `date` query param, defaulting to today.
func dateParam(ctx echo.Context) (core.Date, error) {
	val := core.CleanString(ctx.QueryParam("date"))
	if val == "" {
		return attendance.Today(), nil
	}
	date, err := core.ParseDate(val)
	if err != nil {
		return core.Date{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: "date must be formatted as YYYY-MM-DD"})
	}
	return date, nil
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token  string `json:"token"`
		Role   string `json:"role"`
		UserID string `json:"user_id"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}

	BulkMarkResponse struct {
		DaysMarked int `json:"days_marked"`
	}
)
