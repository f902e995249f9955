package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core/stats"
	"github.com/trezcool/ahadi/core/user"
)

type statsApi struct {
	svc     stats.ServiceInterface
	userSvc user.ServiceInterface
}

func registerStatsAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := statsApi{
		svc:     deps.StatsSvc,
		userSvc: deps.UserSvc,
	}

	sg := g.Group("/stats", jwt, providerMiddleware())
	sg.GET("/overview", api.overview)
	sg.GET("/courses.csv", api.coursesCSV)
	sg.GET("/templates.csv", api.templatesCSV)
}

// Handlers

func (api *statsApi) overview(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}
	ov, err := api.svc.Overview(ctx.Request().Context(), pr.ID)
	if err != nil {
		return errors.Wrap(err, "computing overview")
	}
	return ctx.JSON(http.StatusOK, ov)
}

func (api *statsApi) coursesCSV(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}
	rows, err := api.svc.CourseStatsFor(ctx.Request().Context(), pr.ID)
	if err != nil {
		return errors.Wrap(err, "computing course stats")
	}
	return writeCSV(ctx, "courses.csv", func() error {
		return stats.WriteCourseCSV(ctx.Response(), rows)
	})
}

func (api *statsApi) templatesCSV(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}
	rows, err := api.svc.TemplateStatsFor(ctx.Request().Context(), pr.ID)
	if err != nil {
		return errors.Wrap(err, "computing template stats")
	}
	return writeCSV(ctx, "templates.csv", func() error {
		return stats.WriteTemplateCSV(ctx.Response(), rows)
	})
}
