package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/banking/verification-service/internal/domain"
	"github.com/banking/verification-service/internal/pkg/logger"
	"github.com/banking/verification-service/internal/reconciliation"
)

// CreateInvestigationRequest starts field verification for an application
type CreateInvestigationRequest struct {
	ApplicationID   string                 `json:"applicationId" validate:"required,max=64"`
	ApplicationData map[string]interface{} `json:"applicationData" validate:"required"`
	Thresholds      []ThresholdRequest     `json:"thresholds" validate:"omitempty,dive"`
}

// ThresholdRequest is one per-field threshold rule
type ThresholdRequest struct {
	FieldID       string  `json:"fieldId" validate:"required"`
	MinPercentage float64 `json:"minPercentage" validate:"gte=0,lte=1000"`
	MaxPercentage float64 `json:"maxPercentage" validate:"gte=0,lte=1000"`
}

// ObserveRequest carries the value seen on site
type ObserveRequest struct {
	Value interface{} `json:"value"`
}

// AdjustRequest carries a corrected value. Value and comment are checked by
// the service so the rejection reason reaches the client.
type AdjustRequest struct {
	Value    interface{}       `json:"value"`
	Comment  string            `json:"comment"`
	Evidence []EvidenceRequest `json:"evidence" validate:"omitempty,dive"`
}

// EvidenceRequest references an uploaded attachment
type EvidenceRequest struct {
	Kind      string `json:"kind" validate:"omitempty,oneof=photo document note"`
	Reference string `json:"reference" validate:"required,max=512"`
}

// BlockRequest carries the reason a field cannot be verified
type BlockRequest struct {
	Reason string `json:"reason"`
}

// GeolocationRequest records the outcome of the visit location check
type GeolocationRequest struct {
	Valid *bool `json:"valid" validate:"required"`
}

// FieldResponse is returned by field transitions
type FieldResponse struct {
	Field   domain.FieldRecord     `json:"field"`
	Legacy  domain.LegacyFlags     `json:"legacy"`
	Section domain.SectionProgress `json:"section"`
	Summary domain.Summary         `json:"summary"`
}

func (h *Handler) listInvestigations(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ListInvestigations(c.Request().Context()))
}

func (h *Handler) createInvestigation(c echo.Context) error {
	var req CreateInvestigationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	rules := make([]domain.ThresholdRule, 0, len(req.Thresholds))
	for _, t := range req.Thresholds {
		rules = append(rules, domain.ThresholdRule{
			FieldID:       t.FieldID,
			MinPercentage: t.MinPercentage,
			MaxPercentage: t.MaxPercentage,
		})
	}

	inv, created, err := h.svc.Initialize(c.Request().Context(), req.ApplicationID, req.ApplicationData, rules)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, inv)
}

func (h *Handler) getInvestigation(c echo.Context) error {
	inv, err := h.svc.GetInvestigation(c.Request().Context(), c.Param("appId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) getSummary(c echo.Context) error {
	summary, err := h.svc.GetSummary(c.Request().Context(), c.Param("appId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) getDiffs(c echo.Context) error {
	diffs, err := h.svc.GetDiffs(c.Request().Context(), c.Param("appId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, diffs)
}

func (h *Handler) getSectionProgress(c echo.Context) error {
	progress, err := h.svc.GetSectionProgress(c.Request().Context(), c.Param("appId"), c.Param("sectionId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, progress)
}

func (h *Handler) setGeolocation(c echo.Context) error {
	var req GeolocationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	appID := c.Param("appId")
	if _, err := h.svc.GetSummary(c.Request().Context(), appID); err != nil {
		return err
	}
	h.geo.Set(appID, *req.Valid)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) canFinalize(c echo.Context) error {
	check, err := h.svc.CanFinalize(c.Request().Context(), c.Param("appId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, check)
}

func (h *Handler) finalize(c echo.Context) error {
	summary, err := h.svc.Finalize(c.Request().Context(), c.Param("appId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) observe(c echo.Context) error {
	var req ObserveRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ref := fieldRef(c)
	if err := h.svc.Observe(c.Request().Context(), ref, req.Value); err != nil {
		return err
	}
	return h.fieldResponse(c, ref)
}

func (h *Handler) confirm(c echo.Context) error {
	ref := fieldRef(c)
	if err := h.svc.Confirm(c.Request().Context(), ref); err != nil {
		return err
	}
	return h.fieldResponse(c, ref)
}

func (h *Handler) adjust(c echo.Context) error {
	var req AdjustRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	evidence := make([]domain.Evidence, 0, len(req.Evidence))
	for _, e := range req.Evidence {
		evidence = append(evidence, domain.Evidence{Kind: e.Kind, Reference: e.Reference})
	}

	ref := fieldRef(c)
	if err := h.svc.Adjust(c.Request().Context(), ref, req.Value, req.Comment, evidence...); err != nil {
		return err
	}
	return h.fieldResponse(c, ref)
}

func (h *Handler) block(c echo.Context) error {
	var req BlockRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ref := fieldRef(c)
	if err := h.svc.Block(c.Request().Context(), ref, req.Reason); err != nil {
		return err
	}
	return h.fieldResponse(c, ref)
}

func (h *Handler) validate(c echo.Context) error {
	result, err := h.svc.Validate(c.Request().Context(), fieldRef(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) fieldResponse(c echo.Context, ref reconciliation.FieldRef) error {
	inv, err := h.svc.GetInvestigation(c.Request().Context(), ref.ApplicationID)
	if err != nil {
		return err
	}
	section, ok := inv.Section(ref.SectionID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "section not found")
	}
	f, ok := section.Field(ref.FieldID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "field not found")
	}
	return c.JSON(http.StatusOK, FieldResponse{
		Field:   *f,
		Legacy:  f.LegacyView(),
		Section: *section.ToProgress(),
		Summary: inv.Summary,
	})
}

// requestLogger puts request scoped ids on the context and logs completion
func (h *Handler) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()

		ctx := context.WithValue(req.Context(), logger.RequestIDKey, c.Response().Header().Get(echo.HeaderXRequestID))
		if appID := c.Param("appId"); appID != "" {
			ctx = context.WithValue(ctx, logger.ApplicationIDKey, appID)
		}
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		h.log.WithContext(c.Request().Context()).Debug("request completed",
			logger.StringField("method", req.Method),
			logger.StringField("route", c.Path()),
			logger.IntField("status", c.Response().Status),
			logger.DurationField("duration", time.Since(start)),
		)
		return nil
	}
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

func fieldRef(c echo.Context) reconciliation.FieldRef {
	return reconciliation.FieldRef{
		ApplicationID: c.Param("appId"),
		SectionID:     c.Param("sectionId"),
		FieldID:       c.Param("fieldId"),
	}
}
