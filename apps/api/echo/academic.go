package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core/academic"
)

type academicApi struct {
	svc *academic.Service
}

func registerAcademicAPI(g *echo.Group, auth, admin echo.MiddlewareFunc, deps ServerDeps) {
	api := academicApi{svc: deps.AcademicSvc}

	pg := g.Group("/periods", auth, admin)
	pg.GET("", api.queryPeriods)
	pg.POST("", api.createPeriod)
	pg.GET("/:id", api.retrievePeriod)
	pg.PUT("/:id", api.updatePeriod)

	bg := g.Group("/batches", auth, admin)
	bg.GET("", api.queryBatches)
	bg.POST("", api.createBatch)
	bg.GET("/:id", api.retrieveBatch)
}

func (api *academicApi) queryPeriods(ctx echo.Context) error {
	periods, err := api.svc.QueryPeriods(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying periods")
	}
	return ctx.JSON(http.StatusOK, periods)
}

func (api *academicApi) createPeriod(ctx echo.Context) error {
	var data academic.NewPeriod
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPeriod")
	}
	p, err := api.svc.CreatePeriod(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating period")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *academicApi) retrievePeriod(ctx echo.Context) error {
	p, err := api.svc.GetPeriod(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting period")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *academicApi) updatePeriod(ctx echo.Context) error {
	var data academic.UpdatePeriod
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePeriod")
	}
	p, err := api.svc.UpdatePeriod(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating period")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *academicApi) queryBatches(ctx echo.Context) error {
	batches, err := api.svc.QueryBatches(ctx.Request().Context(), ctx.QueryParam("period_id"))
	if err != nil {
		return errors.Wrap(err, "querying batches")
	}
	return ctx.JSON(http.StatusOK, batches)
}

func (api *academicApi) createBatch(ctx echo.Context) error {
	var data academic.NewBatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBatch")
	}
	b, err := api.svc.CreateBatch(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating batch")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *academicApi) retrieveBatch(ctx echo.Context) error {
	b, err := api.svc.GetBatch(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting batch")
	}
	return ctx.JSON(http.StatusOK, b)
}
