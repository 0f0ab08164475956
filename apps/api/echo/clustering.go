package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/clustering"
	"github.com/pnl-akademik/disiplin/core/notify"
)

type (
	clusteringApi struct {
		svc        *clustering.Service
		dispatcher *notify.Dispatcher
	}

	ProcessResponse struct {
		Rows    []clustering.Row `json:"rows"`
		Stats   clustering.Stats `json:"stats"`
		Summary core.Summary     `json:"summary"`
	}

	SaveResultsRequest struct {
		Rows []clustering.Row `json:"rows"`
	}

	NotifyRequest struct {
		Template   string `json:"template"`
		OnlyUnsent bool   `json:"only_unsent"`
	}
)

func registerClusteringAPI(g *echo.Group, auth, admin echo.MiddlewareFunc, deps ServerDeps) {
	api := clusteringApi{
		svc:        deps.ClusteringSvc,
		dispatcher: deps.Dispatcher,
	}

	clusteringReady := integrationMiddleware(deps.Conf.Clustering.Check)
	whatsappReady := integrationMiddleware(deps.Dispatcher.Check)

	g.POST("/clustering/process", api.process, auth, admin, clusteringReady)

	bg := g.Group("/batches/:id", auth, admin)
	bg.GET("/report", api.report)
	bg.POST("/results", api.saveResults)
	bg.POST("/notifications", api.notify, whatsappReady)

	rg := g.Group("/results", auth, admin)
	rg.GET("", api.queryResults)
	rg.GET("/stats", api.stats)
	rg.GET("/:id", api.retrieveResult)
}

func (api *clusteringApi) process(ctx echo.Context) error {
	rows, err := processUpload(ctx, api.svc)
	if err != nil {
		return err
	}
	stats := clustering.ComputeStats(resultsOf(rows))
	return ctx.JSON(http.StatusOK, ProcessResponse{
		Rows:    rows,
		Stats:   stats,
		Summary: core.SuccessSummary("%d row(s) clustered", len(rows)),
	})
}

func (api *clusteringApi) saveResults(ctx echo.Context) error {
	var data SaveResultsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveResultsRequest")
	}
	report, err := api.svc.SaveResults(ctx.Request().Context(), ctx.Param("id"), data.Rows)
	if err != nil {
		return errors.Wrap(err, "saving results")
	}
	return ctx.JSON(http.StatusCreated, report)
}

func (api *clusteringApi) report(ctx echo.Context) error {
	report, err := api.svc.Report(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "building batch report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *clusteringApi) notify(ctx echo.Context) error {
	var data NotifyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NotifyRequest")
	}
	if data.Template != "" && data.Template != notify.TemplateLetter && data.Template != notify.TemplateReport {
		return core.NewValidationError(nil, core.FieldError{
			Field: "template",
			Error: "template must be one of " + notify.TemplateLetter + ", " + notify.TemplateReport,
		})
	}
	requester, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	if err = api.dispatcher.Check(); err != nil {
		return err
	}

	results, err := api.svc.QueryResults(ctx.Request().Context(), clustering.ResultFilter{BatchID: ctx.Param("id")})
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	report, err := api.dispatcher.DispatchBatch(ctx.Request().Context(), results, notify.Options{
		Template:   data.Template,
		OnlyUnsent: data.OnlyUnsent,
		Requester:  requester,
	})
	if err != nil {
		return errors.Wrap(err, "dispatching notifications")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *clusteringApi) queryResults(ctx echo.Context) error {
	var filter clustering.ResultFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ResultFilter")
	}
	results, err := api.svc.QueryResults(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *clusteringApi) stats(ctx echo.Context) error {
	var filter clustering.ResultFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ResultFilter")
	}
	results, err := api.svc.QueryResults(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	return ctx.JSON(http.StatusOK, clustering.ComputeStats(results))
}

func (api *clusteringApi) retrieveResult(ctx echo.Context) error {
	r, err := api.svc.GetResult(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting result")
	}
	return ctx.JSON(http.StatusOK, r)
}

// resultsOf turns unsaved rows into results, for statistics.
func resultsOf(rows []clustering.Row) []clustering.ResultDetail {
	results := make([]clustering.ResultDetail, 0, len(rows))
	for _, r := range rows {
		results = append(results, clustering.ResultDetail{Result: clustering.Result{
			IDNumber:      r.IDNumber,
			StudentName:   r.Name,
			TotalAbsences: r.TotalAbsences,
			TotalSessions: r.TotalSessions,
			Status:        r.Status,
			Cluster:       r.Cluster,
		}})
	}
	return results
}
