package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/auth"
	"github.com/trezcool/educore/core/registration"
)

type registrationApi struct {
	svc      *registration.Service
	validate *core.Validator
}

func registerRegistrationAPI(
	g *echo.Group,
	gate func(string) echo.MiddlewareFunc,
	svc *registration.Service,
	validate *core.Validator,
) {
	api := registrationApi{
		svc:      svc,
		validate: validate,
	}

	rg := g.Group("/registrations")

	// un-authed endpoints
	rg.POST("", api.submit)

	// operator endpoints
	rg.GET("/pending", api.listPending, gate(auth.ActionListPendingRegistrations))
	rg.GET("/:id", api.retrieve, gate(auth.ActionGetRegistration))
	rg.POST("/:id/approve", api.approve, gate(auth.ActionApproveRegistration))
	rg.POST("/:id/reject", api.reject, gate(auth.ActionRejectRegistration))
}

// Handlers

func (api *registrationApi) submit(ctx echo.Context) error {
	var data registration.NewRegistration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRegistration")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Submit(ctx.Request().Context(), data, NowFunc())
	if err != nil {
		return errors.Wrap(err, "submitting registration")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *registrationApi) listPending(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)

	recs, err := api.svc.ListPending(ctx.Request().Context(), getContextGrant(ctx), ord.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing pending registrations")
	}
	if recs == nil {
		recs = []registration.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *registrationApi) retrieve(ctx echo.Context) error {
	rec, err := api.svc.Get(ctx.Request().Context(), getContextGrant(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting registration")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *registrationApi) approve(ctx echo.Context) error {
	rec, err := api.svc.Approve(ctx.Request().Context(), getContextGrant(ctx), ctx.Param("id"), NowFunc())
	if err != nil {
		return errors.Wrap(err, "approving registration")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *registrationApi) reject(ctx echo.Context) error {
	var data registration.RejectRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectRequest")
	}

	rec, err := api.svc.Reject(ctx.Request().Context(), getContextGrant(ctx), ctx.Param("id"), data.Reason, NowFunc())
	if err != nil {
		return errors.Wrap(err, "rejecting registration")
	}
	return ctx.JSON(http.StatusOK, rec)
}
