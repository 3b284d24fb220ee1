package handler

import (
	netmail "net/mail"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"student-records-backend/errs"
	"student-records-backend/events"
	"student-records-backend/mail"
)

type InviteRequest struct {
	Email string `json:"email"`
}

type inviteHandler struct {
	d Deps
}

func NewInviteHandler(d Deps) *inviteHandler {
	return &inviteHandler{d: d.withDefaults()}
}

func (h *inviteHandler) Invite(c echo.Context) error {
	ctx := c.Request().Context()
	logger := requestLogger(c)

	req := &InviteRequest{}
	if err := c.Bind(req); err != nil {
		return errs.ErrInvalidBody
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		return errs.ErrEmailRequired
	}
	if _, err := netmail.ParseAddress(email); err != nil {
		return errs.ErrEmailAddressFormat
	}

	msg, err := mail.InviteMessage(h.d.ClientURL, email)
	if err != nil {
		logger.Error("unable to render invite email", zap.Error(err))
		return errs.ErrMail
	}

	id, err := h.d.Mail.Send(ctx, msg)
	if err != nil {
		logger.Error("unable to send invite email", zap.Error(err))
		return errs.ErrMail
	}
	events.Emit(ctx, h.d.Events, events.New(events.Invited, ""))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Invitation sent successfully",
		"info":    id,
	})
}
