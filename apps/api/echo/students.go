package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/enroll"
)

type (
	studentApi struct {
		clustering *clustering.Service
		engine     *enroll.Engine
	}

	PreviewResponse struct {
		Records []enroll.Record `json:"records"`
		Total   int             `json:"total"`
		Summary core.Summary    `json:"summary"`
	}

	RegisterRequest struct {
		Records []enroll.Record `json:"records"`
	}
)

func registerStudentAPI(g *echo.Group, auth, admin echo.MiddlewareFunc, deps ServerDeps) {
	api := studentApi{
		clustering: deps.ClusteringSvc,
		engine:     deps.Engine,
	}

	sg := g.Group("/students", auth, admin)
	sg.POST("/preview", api.preview, integrationMiddleware(deps.Conf.Clustering.Check))
	sg.POST("/register", api.register)
	sg.POST("/register/retry", api.retry)
}

// preview reads the students of an uploaded workbook.
func (api *studentApi) preview(ctx echo.Context) error {
	rows, err := processUpload(ctx, api.clustering)
	if err != nil {
		return err
	}
	records := enroll.FromRows(rows)
	return ctx.JSON(http.StatusOK, PreviewResponse{
		Records: records,
		Total:   len(records),
		Summary: core.InfoSummary("%d student(s) found in the workbook", len(records)),
	})
}

func (api *studentApi) register(ctx echo.Context) error {
	var data RegisterRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterRequest")
	}
	if len(data.Records) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "records", Error: "no student to register"})
	}
	client, err := getContextClient(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context client")
	}

	report, err := api.engine.Run(ctx.Request().Context(), client, data.Records)
	return enrollmentResponse(ctx, report, err)
}

func (api *studentApi) retry(ctx echo.Context) error {
	var prev enroll.Report
	if err := ctx.Bind(&prev); err != nil {
		return errors.Wrap(err, "binding to Report")
	}
	client, err := getContextClient(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context client")
	}

	report, err := api.engine.RetryRateLimited(ctx.Request().Context(), client, prev)
	return enrollmentResponse(ctx, report, err)
}

// enrollmentResponse answers 403 with the partial report of a run halted by a policy denial.
func enrollmentResponse(ctx echo.Context, report enroll.Report, err error) error {
	if errors.Is(err, enroll.ErrPolicyDenied) {
		return ctx.JSON(http.StatusForbidden, report)
	}
	if err != nil {
		return errors.Wrap(err, "registering students")
	}
	return ctx.JSON(http.StatusOK, report)
}
