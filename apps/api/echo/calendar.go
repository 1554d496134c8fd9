package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/athravseruwam07/clarus/core"
	"github.com/athravseruwam07/clarus/core/timeline"
)

type calendarApi struct {
	service *timeline.Service
}

func registerCalendarAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *timeline.Service) {
	api := calendarApi{service: svc}

	cg := g.Group("/calendar", jwt)
	cg.POST("/sync", api.calendarSync)
	cg.GET("/events", api.eventList)
	cg.GET("/outcomes/latest", api.outcomeLatest)
}

// Handlers

func (api *calendarApi) calendarSync(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	out, err := api.service.RunCalendarSync(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, out)
}

type eventListRequest struct {
	From      string `query:"from" json:"from"`
	To        string `query:"to" json:"to"`
	Sources   string `query:"sources" json:"sources"`
	OrgUnitID int    `query:"orgUnitId" json:"orgUnitId" validate:"omitempty,gte=0"`
}

// Validate parses the raw query params into a timeline.QueryFilter.
func (r *eventListRequest) Validate() (timeline.QueryFilter, error) {
	var filter timeline.QueryFilter
	var err error

	if r.From != "" {
		if filter.From, err = time.Parse(time.RFC3339, r.From); err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "from", Error: "invalid RFC3339 timestamp"})
		}
	}
	if r.To != "" {
		if filter.To, err = time.Parse(time.RFC3339, r.To); err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "to", Error: "invalid RFC3339 timestamp"})
		}
	}
	for _, src := range strings.Split(r.Sources, ",") {
		if src = strings.TrimSpace(src); src != "" {
			filter.Sources = append(filter.Sources, timeline.SourceType(src))
		}
	}
	filter.OrgUnitID = r.OrgUnitID
	return filter, nil
}

func (api *calendarApi) eventList(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	data := new(eventListRequest)
	if err = ctx.Bind(data); err != nil {
		return err
	}
	if err = core.Validate.Struct(data); err != nil {
		return err
	}
	filter, err := data.Validate()
	if err != nil {
		return err
	}

	events, err := api.service.QueryEvents(ctx.Request().Context(), claims.Subject, filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *calendarApi) outcomeLatest(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	out, err := api.service.LatestOutcome(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if err == timeline.ErrOutcomeNotFound {
			return errHttpNotFound
		}
		return err
	}
	return ctx.JSON(http.StatusOK, out)
}
