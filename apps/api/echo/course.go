package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core/course"
	"github.com/trezcool/ahadi/core/stats"
	"github.com/trezcool/ahadi/core/user"
)

type courseApi struct {
	svc      course.ServiceInterface
	stats    stats.ServiceInterface
	userSvc  user.ServiceInterface
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{
		svc:      deps.CourseSvc,
		stats:    deps.StatsSvc,
		userSvc:  deps.UserSvc,
		validate: deps.Validate,
	}

	// provider endpoints
	pg := g.Group("/courses", jwt, providerMiddleware())
	pg.POST("", api.create)
	pg.GET("", api.list)
	pg.GET("/:id", api.retrieve)
	pg.PUT("/:id", api.update)
	pg.DELETE("/:id", api.delete)
	pg.GET("/:id/students", api.students)
	pg.PUT("/:id/suggested-templates", api.setSuggestedTemplates)
	pg.GET("/:id/stats", api.courseStats)
	pg.GET("/:id/commitments.csv", api.commitmentsCSV)

	// clinician endpoints
	cg := g.Group("/courses", jwt, clinicianMiddleware())
	cg.POST("/join", api.join)
	cg.GET("/enrolled", api.enrolled)

	// readable by the owning provider and by enrolled clinicians
	g.GET("/courses/:id/suggested-templates", api.suggestedTemplates, jwt)
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data course.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	crs, err := api.svc.CreateCourse(ctx.Request().Context(), pr, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) list(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}
	crss, err := api.svc.CoursesOwnedBy(ctx.Request().Context(), pr.ID)
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	return ctx.JSON(http.StatusOK, crss)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, _, err := api.ownedCourse(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data course.EditCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditCourse")
	}

	crs, err := api.svc.EditCourse(ctx.Request().Context(), pr.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "editing course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) delete(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCourse(ctx.Request().Context(), pr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) students(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}
	students, err := api.svc.Students(ctx.Request().Context(), pr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *courseApi) setSuggestedTemplates(ctx echo.Context) error {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data SuggestedTemplatesRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SuggestedTemplatesRequest")
	}

	reqCtx := ctx.Request().Context()
	if err = api.svc.SetSuggestedTemplates(reqCtx, pr.ID, ctx.Param("id"), data.TemplateIDs); err != nil {
		return errors.Wrap(err, "setting suggested templates")
	}

	tpls, err := api.svc.SuggestedTemplates(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing suggested templates")
	}
	return ctx.JSON(http.StatusOK, tpls)
}

func (api *courseApi) suggestedTemplates(ctx echo.Context) error {
	if err := api.authorizeCourseRead(ctx); err != nil {
		return err
	}
	tpls, err := api.svc.SuggestedTemplates(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing suggested templates")
	}
	return ctx.JSON(http.StatusOK, tpls)
}

func (api *courseApi) courseStats(ctx echo.Context) error {
	crs, _, err := api.ownedCourse(ctx)
	if err != nil {
		return err
	}
	counts, err := api.stats.ForCourse(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "computing course stats")
	}
	return ctx.JSON(http.StatusOK, counts)
}

func (api *courseApi) commitmentsCSV(ctx echo.Context) error {
	crs, _, err := api.ownedCourse(ctx)
	if err != nil {
		return err
	}
	cmts, err := api.stats.CourseCommitments(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "listing course commitments")
	}
	return writeCSV(ctx, "commitments.csv", func() error {
		return stats.WriteCommitmentsCSV(ctx.Response(), cmts)
	})
}

func (api *courseApi) join(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data JoinCourseRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinCourseRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	crs, err := api.svc.EnrollByCode(ctx.Request().Context(), cl.ID, data.JoinCode)
	if err != nil {
		return errors.Wrap(err, "enrolling by join code")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) enrolled(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}
	crss, err := api.svc.CoursesEnrolledIn(ctx.Request().Context(), cl.ID)
	if err != nil {
		return errors.Wrap(err, "listing enrolled courses")
	}
	return ctx.JSON(http.StatusOK, crss)
}

// ownedCourse loads the course and rejects providers that do not own it.
func (api *courseApi) ownedCourse(ctx echo.Context) (course.Course, user.Provider, error) {
	pr, err := getContextProvider(ctx, api.userSvc)
	if err != nil {
		return course.Course{}, user.Provider{}, err
	}
	crs, err := api.svc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return course.Course{}, user.Provider{}, errors.Wrap(err, "finding course")
	}
	if crs.OwnerID != pr.ID {
		return course.Course{}, user.Provider{}, errHttpNotFound
	}
	return crs, pr, nil
}

// authorizeCourseRead admits the owning provider and enrolled
// clinicians; to everyone else the course does not exist.
func (api *courseApi) authorizeCourseRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	switch {
	case claims.IsProvider:
		_, _, err := api.ownedCourse(ctx)
		return err
	case claims.IsClinician:
		cl, err := getContextClinician(ctx, api.userSvc)
		if err != nil {
			return err
		}
		enrolled, err := api.svc.IsEnrolled(reqCtx, ctx.Param("id"), cl.ID)
		if err != nil {
			return errors.Wrap(err, "checking enrollment")
		}
		if !enrolled {
			return errHttpNotFound
		}
		return nil
	}
	return errHttpForbidden
}

type (
	JoinCourseRequest struct {
		JoinCode string `json:"join_code" validate:"required"`
	}

	SuggestedTemplatesRequest struct {
		TemplateIDs []string `json:"template_ids"`
	}
)

// writeCSV sets download headers and streams the body.
func writeCSV(ctx echo.Context, filename string, write func() error) error {
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	res.WriteHeader(http.StatusOK)
	return write()
}
