package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/reminder"
	"github.com/trezcool/ahadi/core/user"
)

type commitmentApi struct {
	svc       commitment.ServiceInterface
	reminders reminder.ServiceInterface
	userSvc   user.ServiceInterface
	clock     core.Clock
	validate  *validator.Validate
}

func registerCommitmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := commitmentApi{
		svc:       deps.CommitmentSvc,
		reminders: deps.ReminderSvc,
		userSvc:   deps.UserSvc,
		clock:     deps.Clock,
		validate:  deps.Validate,
	}

	// shareable read-only view; linked from reminder emails
	g.GET("/commitments/:id/view", api.view)

	cg := g.Group("/commitments", jwt, clinicianMiddleware())
	cg.GET("", api.list)
	cg.POST("", api.create)
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update)
	cg.DELETE("/:id", api.delete)

	cg.POST("/:id/complete", api.complete)
	cg.POST("/:id/discontinue", api.discontinue)
	cg.POST("/:id/reopen", api.reopen)
	cg.POST("/:id/apply-template", api.applyTemplate)

	cg.GET("/:id/reminders", api.listReminders)
	cg.POST("/:id/reminders", api.scheduleOneShot)
	cg.POST("/:id/reminders/recurring", api.scheduleRecurring)
	cg.DELETE("/:id/reminders", api.clearReminders)
	cg.DELETE("/:id/reminders/:rid", api.deleteOneShot)
	cg.DELETE("/:id/reminders/recurring/:rid", api.deleteRecurring)
}

// Handlers

func (api *commitmentApi) view(ctx echo.Context) error {
	cmt, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding commitment")
	}
	return ctx.JSON(http.StatusOK, newCommitmentResponse(cmt))
}

func (api *commitmentApi) list(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}

	cmts, err := api.svc.OwnedBy(ctx.Request().Context(), cl.ID)
	if err != nil {
		return errors.Wrap(err, "listing commitments")
	}

	if name := ctx.QueryParam("status"); name != "" {
		status, ok := commitment.ParseStatus(name)
		if !ok {
			return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "unknown status"})
		}
		filtered := cmts[:0]
		for _, cmt := range cmts {
			if cmt.Status == status {
				filtered = append(filtered, cmt)
			}
		}
		cmts = filtered
	}

	res := make([]commitmentResponse, len(cmts))
	for i, cmt := range cmts {
		res[i] = newCommitmentResponse(cmt)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *commitmentApi) create(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data commitment.NewCommitment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCommitment")
	}
	if err = data.Validate(api.validate, api.clock); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	cmt, err := api.svc.Create(reqCtx, cl, data)
	if err != nil {
		return errors.Wrap(err, "creating commitment")
	}
	if data.ReminderPreset != "" {
		if err = api.reminders.ApplyPreset(reqCtx, cmt, reminder.Preset(data.ReminderPreset)); err != nil {
			return errors.Wrap(err, "applying reminder preset")
		}
	}
	return ctx.JSON(http.StatusCreated, newCommitmentResponse(cmt))
}

func (api *commitmentApi) retrieve(ctx echo.Context) error {
	cmt, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding commitment")
	}
	return ctx.JSON(http.StatusOK, newCommitmentResponse(cmt))
}

func (api *commitmentApi) update(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data commitment.EditCommitment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditCommitment")
	}

	cmt, err := api.svc.Edit(ctx.Request().Context(), cl.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "editing commitment")
	}
	return ctx.JSON(http.StatusOK, newCommitmentResponse(cmt))
}

func (api *commitmentApi) delete(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), cl.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting commitment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *commitmentApi) complete(ctx echo.Context) error {
	if err := bindConfirm(ctx, "completing a commitment must be confirmed"); err != nil {
		return err
	}
	return api.transition(ctx, api.svc.MarkComplete)
}

func (api *commitmentApi) discontinue(ctx echo.Context) error {
	if err := bindConfirm(ctx, "discontinuing a commitment must be confirmed"); err != nil {
		return err
	}
	return api.transition(ctx, api.svc.MarkDiscontinued)
}

func (api *commitmentApi) reopen(ctx echo.Context) error {
	if err := bindConfirm(ctx, "reopening a commitment must be confirmed"); err != nil {
		return err
	}
	return api.transition(ctx, api.svc.Reopen)
}

// bindConfirm enforces the confirmation field every status transition
// must carry.
func bindConfirm(ctx echo.Context, msg string) error {
	var data ConfirmRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConfirmRequest")
	}
	if !data.Confirm {
		return core.NewValidationError(nil, core.FieldError{Field: "confirm", Error: msg})
	}
	return nil
}

func (api *commitmentApi) transition(
	ctx echo.Context,
	op func(reqCtx context.Context, actorID, id string) (commitment.Commitment, error),
) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}
	cmt, err := op(ctx.Request().Context(), cl.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "transitioning commitment")
	}
	return ctx.JSON(http.StatusOK, newCommitmentResponse(cmt))
}

func (api *commitmentApi) applyTemplate(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data ApplyTemplateRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ApplyTemplateRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	cmt, err := api.svc.ApplyTemplate(ctx.Request().Context(), cl.ID, ctx.Param("id"), data.TemplateID)
	if err != nil {
		return errors.Wrap(err, "applying template")
	}
	return ctx.JSON(http.StatusOK, newCommitmentResponse(cmt))
}

func (api *commitmentApi) listReminders(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}
	rems, err := api.reminders.ListFor(ctx.Request().Context(), cl.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing reminders")
	}
	return ctx.JSON(http.StatusOK, rems)
}

func (api *commitmentApi) scheduleOneShot(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data NewOneShotRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOneShotRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	rem, err := api.reminders.ScheduleOneShot(ctx.Request().Context(), cl.ID, ctx.Param("id"), data.Date)
	if err != nil {
		return errors.Wrap(err, "scheduling reminder")
	}
	return ctx.JSON(http.StatusCreated, rem)
}

func (api *commitmentApi) scheduleRecurring(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data NewRecurringRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRecurringRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	rem, err := api.reminders.ScheduleRecurring(ctx.Request().Context(), cl.ID, ctx.Param("id"), data.IntervalDays, data.NextEmailDate)
	if err != nil {
		return errors.Wrap(err, "scheduling recurring reminder")
	}
	return ctx.JSON(http.StatusCreated, rem)
}

func (api *commitmentApi) clearReminders(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if err = api.reminders.Clear(ctx.Request().Context(), cl.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "clearing reminders")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *commitmentApi) deleteOneShot(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if err = api.reminders.DeleteOneShot(ctx.Request().Context(), cl.ID, ctx.Param("rid")); err != nil {
		return errors.Wrap(err, "deleting reminder")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *commitmentApi) deleteRecurring(ctx echo.Context) error {
	cl, err := getContextClinician(ctx, api.userSvc)
	if err != nil {
		return err
	}
	if err = api.reminders.DeleteRecurring(ctx.Request().Context(), cl.ID, ctx.Param("rid")); err != nil {
		return errors.Wrap(err, "deleting recurring reminder")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	ConfirmRequest struct {
		Confirm bool `json:"confirm"`
	}

	ApplyTemplateRequest struct {
		TemplateID string `json:"template_id" validate:"required"`
	}

	NewOneShotRequest struct {
		Date time.Time `json:"date" validate:"required"`
	}

	NewRecurringRequest struct {
		IntervalDays  int        `json:"interval_days" validate:"required,min=1"`
		NextEmailDate *time.Time `json:"next_email_date"`
	}

	commitmentResponse struct {
		commitment.Commitment
		StatusLabel string `json:"status_label"`
	}
)

func newCommitmentResponse(cmt commitment.Commitment) commitmentResponse {
	return commitmentResponse{Commitment: cmt, StatusLabel: cmt.StatusLabel()}
}
