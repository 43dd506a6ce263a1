package echoapi

import (
	"bytes"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/user"
	"github.com/trezcool/mahudhurio/services/report"
)

type teacherApi struct {
	usrSvc   *user.Service
	attSvc   *attendance.Service
	validate *validator.Validate
}

func registerTeacherAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	usrSvc *user.Service,
	attSvc *attendance.Service,
	validate *validator.Validate,
) {
	api := teacherApi{
		usrSvc:   usrSvc,
		attSvc:   attSvc,
		validate: validate,
	}

	tg := g.Group("/teacher", jwt, teacherMiddleware(usrSvc))
	tg.GET("/students", api.queryStudents)

	ag := tg.Group("/attendance")
	ag.GET("", api.recordsForDate)
	ag.POST("/mark", api.markDay)
	ag.POST("/bulk", api.bulkMark)
	ag.GET("/export", api.exportRegister)

	an := tg.Group("/analytics")
	an.GET("/class", api.classSummary)
	an.GET("/student", api.studentSummary)
}

// Handlers

func (api *teacherApi) queryStudents(ctx echo.Context) error {
	filter := user.QueryFilter{Search: ctx.QueryParam("search"), Role: user.RoleStudent}
	filter.Clean()

	var ordering Ordering
	ordering.Bind(ctx)
	if len(ordering.Orderings) == 0 {
		ordering.Orderings = []core.DBOrdering{{Field: "name", Ascending: true}}
	}

	students, err := api.usrSvc.Query(ctx.Request().Context(), &filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *teacherApi) recordsForDate(ctx echo.Context) error {
	date, err := dateParam(ctx)
	if err != nil {
		return err
	}
	records, err := api.attSvc.RecordsForDate(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "listing records")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *teacherApi) markDay(ctx echo.Context) error {
	teacher, err := contextTeacher(ctx)
	if err != nil {
		return err
	}

	var data attendance.DayMark
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DayMark")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	records, err := api.attSvc.MarkDay(ctx.Request().Context(), teacher, data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *teacherApi) bulkMark(ctx echo.Context) error {
	teacher, err := contextTeacher(ctx)
	if err != nil {
		return err
	}

	var data attendance.BulkMark
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkMark")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	n, err := api.attSvc.BulkMark(ctx.Request().Context(), teacher, data)
	if err != nil {
		return errors.Wrap(err, "bulk marking attendance")
	}
	return ctx.JSON(http.StatusOK, BulkMarkResponse{DaysMarked: n})
}

func (api *teacherApi) exportRegister(ctx echo.Context) error {
	reg, err := api.attSvc.Register(ctx.Request().Context(), monthParam(ctx))
	if err != nil {
		return errors.Wrap(err, "building register")
	}

	var buf bytes.Buffer
	if err = reportsvc.WriteRegister(&buf, reg); err != nil {
		return errors.Wrap(err, "writing register")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+reportsvc.RegisterFilename(reg.Month)+`"`)
	return ctx.Blob(http.StatusOK, reportsvc.ContentTypeXLSX, buf.Bytes())
}

func (api *teacherApi) classSummary(ctx echo.Context) error {
	summary, err := api.attSvc.ClassSummary(ctx.Request().Context(), monthParam(ctx))
	if err != nil {
		return errors.Wrap(err, "summarizing class")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *teacherApi) studentSummary(ctx echo.Context) error {
	studentID := core.CleanString(ctx.QueryParam("student_id"))
	if studentID == "" {
		return core.NewValidationError(errors.New("student_id is required"),
			core.FieldError{Field: "student_id", Error: "this field is required"})
	}

	summary, err := api.attSvc.StudentSummary(ctx.Request().Context(), studentID, monthParam(ctx))
	if err != nil {
		return errors.Wrap(err, "summarizing student")
	}
	return ctx.JSON(http.StatusOK, summary)
}
