package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/user"
)

type templateApi struct {
	svc      course.ServiceInterface
	userSvc  user.ServiceInterface
	validate *validator.Validate
}

func registerTemplateAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := templateApi{
		svc:      deps.CourseSvc,
		userSvc:  deps.UserSvc,
		validate: deps.Validate,
	}

	tg := g.Group("/templates", jwt, providerMiddleware())
	tg.POST("", api.create)
	tg.GET("", api.list)
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update)
	tg.DELETE("/:id", api.delete)
}

// Handlers

func (api *templateApi) create(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data course.NewTemplate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tpl, err := api.svc.CreateTemplate(ctx.Request().Context(), pr, data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tpl)
}

func (api *templateApi) list(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}
	tpls, err := api.svc.TemplatesOwnedBy(ctx.Request().Context(), pr.ID)
	if err != nil {
		return errors.Wrap(err, "listing templates")
	}
	return ctx.JSON(http.StatusOK, tpls)
}

func (api *templateApi) retrieve(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}
	tpl, err := api.svc.GetTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding template")
	}
	if tpl.OwnerID != pr.ID {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (api *templateApi) update(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data course.EditTemplate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditTemplate")
	}

	tpl, err := api.svc.EditTemplate(ctx.Request().Context(), pr.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "editing template")
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (api *templateApi) delete(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTemplate(ctx.Request().Context(), pr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.NoContent(http.StatusNoContent)
}
