package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/banking/verification-service/internal/domain"
	"github.com/banking/verification-service/internal/pkg/logger"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Reason  string            `json:"reason"`
	Reasons []string          `json:"reasons,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (h *Handler) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := h.toResponse(err)
	if status >= http.StatusInternalServerError {
		h.log.WithContext(c.Request().Context()).Error("request failed",
			logger.StringField("path", c.Path()),
			logger.ErrorField(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		h.log.Warn("write error response", logger.ErrorField(err))
	}
}

func (h *Handler) toResponse(err error) (int, ErrorResponse) {
	var rej *domain.Rejection
	if errors.As(err, &rej) {
		body := ErrorResponse{
			Reason:  domain.ReasonCode(err),
			Reasons: rej.Codes(),
			Message: rej.Error(),
		}
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return http.StatusNotFound, body
		case errors.Is(err, domain.ErrFinalized):
			return http.StatusConflict, body
		default:
			return http.StatusUnprocessableEntity, body
		}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return http.StatusBadRequest, ErrorResponse{Reason: "VALIDATION_FAILED", Message: "request validation failed", Fields: fields}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, ErrorResponse{Reason: reasonForStatus(he.Code), Message: msg}
	}

	return http.StatusInternalServerError, ErrorResponse{Reason: "INTERNAL", Message: "internal error"}
}

func reasonForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	}
	return "HTTP_ERROR"
}
