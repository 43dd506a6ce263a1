package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
)

type studentApi struct {
	attSvc *attendance.Service
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, usrSvc *user.Service, attSvc *attendance.Service) {
	api := studentApi{attSvc: attSvc}

	sg := g.Group("/student", jwt, studentMiddleware(usrSvc))
	sg.GET("/attendance", api.ownRecords)
	sg.PUT("/attendance/:id/reason", api.setAbsenceReason)
	sg.GET("/analytics", api.ownSummary)
}

// Handlers

func (api *studentApi) ownRecords(ctx echo.Context) error {
	student, err := contextStudent(ctx)
	if err != nil {
		return err
	}
	month := core.CleanString(ctx.QueryParam("month")) // all records when missing
	records, err := api.attSvc.StudentRecords(ctx.Request().Context(), student, month)
	if err != nil {
		return errors.Wrap(err, "listing own records")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *studentApi) ownSummary(ctx echo.Context) error {
	student, err := contextStudent(ctx)
	if err != nil {
		return err
	}
	summary, err := api.attSvc.StudentSummary(ctx.Request().Context(), student.ID, monthParam(ctx))
	if err != nil {
		return errors.Wrap(err, "summarizing own attendance")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *studentApi) setAbsenceReason(ctx echo.Context) error {
	student, err := contextStudent(ctx)
	if err != nil {
		return err
	}

	var data attendance.AbsenceReasonUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AbsenceReasonUpdate")
	}

	rec, err := api.attSvc.SetAbsenceReason(ctx.Request().Context(), student, ctx.Param("id"), data.AbsenceReason)
	if err != nil {
		return errors.Wrap(err, "setting absence reason")
	}
	return ctx.JSON(http.StatusOK, rec)
}
