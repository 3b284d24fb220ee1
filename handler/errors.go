package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"student-records-backend/errs"
)

var statuses = []struct {
	err    error
	status int
}{
	{errs.ErrEmailRequired, http.StatusBadRequest},
	{errs.ErrEmailAddressFormat, http.StatusBadRequest},
	{errs.ErrInvalidBody, http.StatusBadRequest},
	{errs.ErrInvalidID, http.StatusBadRequest},
	{errs.ErrInvalidResetToken, http.StatusBadRequest},
	{errs.ErrSamePassword, http.StatusBadRequest},
	{errs.ErrCurrentPassword, http.StatusBadRequest},
	{errs.ErrImportFile, http.StatusBadRequest},
	{errs.ErrInvalidEmailOrPassword, http.StatusUnauthorized},
	{errs.ErrUnauthorized, http.StatusUnauthorized},
	{errs.ErrTokenExpired, http.StatusUnauthorized},
	{errs.ErrNotAdmin, http.StatusForbidden},
	{errs.ErrNotFound, http.StatusNotFound},
	{errs.ErrAlreadyExists, http.StatusConflict},
	{errs.ErrMail, http.StatusBadGateway},
	{errs.ErrDatabase, http.StatusInternalServerError},
	{errs.ErrCryptographic, http.StatusInternalServerError},
	{errs.ErrJWT, http.StatusInternalServerError},
}

// ErrorHandler renders every error returned by a handler or middleware.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := render(err)
	if status >= http.StatusInternalServerError {
		requestLogger(c).Error("request failed", zap.Error(err), zap.String("path", c.Path()))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		requestLogger(c).Debug("unable to write error response", zap.Error(err))
	}
}

func render(err error) (int, echo.Map) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, echo.Map{"error": "Validation failed", "details": ve.Fields}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, echo.Map{"error": msg, "message": msg}
	}

	for _, s := range statuses {
		if errors.Is(err, s.err) {
			msg := s.err.Error()
			return s.status, echo.Map{"error": msg, "message": msg}
		}
	}

	return http.StatusInternalServerError, echo.Map{"error": "Internal Server Error"}
}
