package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"student-records-backend/entity"
	"student-records-backend/errs"
	"student-records-backend/events"
	"student-records-backend/store"
)

// UpdateStudentRequest is a partial update. Absent or empty fields are left
// unchanged. Passwords change only through change-password or reset.
type UpdateStudentRequest struct {
	FullName *string `json:"fullName"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone"`
	Dob      *string `json:"dob"`
	Gender   *string `json:"gender"`
	Address  *string `json:"address"`
	Course   *string `json:"course"`
}

type studentHandler struct {
	d Deps
}

func NewStudentHandler(d Deps) *studentHandler {
	return &studentHandler{d: d.withDefaults()}
}

func (h *studentHandler) List(c echo.Context) error {
	students, err := h.d.Students.List(c.Request().Context())
	if err != nil {
		requestLogger(c).Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}

	out := make([]*entity.Student, len(students))
	for i, s := range students {
		out[i] = open(h.d.Codec, s)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *studentHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	s, err := h.d.Students.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrNotFound
		}

		requestLogger(c).Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}

	return c.JSON(http.StatusOK, open(h.d.Codec, s))
}

func (h *studentHandler) fields(logger *zap.Logger, req *UpdateStudentRequest) (store.Fields, error) {
	fields := store.Fields{entity.FieldUpdatedAt: time.Now().UTC()}

	plain := map[string]*string{
		entity.FieldFullName: req.FullName,
		entity.FieldEmail:    req.Email,
		entity.FieldPhone:    req.Phone,
		entity.FieldDob:      req.Dob,
		entity.FieldGender:   req.Gender,
		entity.FieldAddress:  req.Address,
		entity.FieldCourse:   req.Course,
	}
	for name, v := range plain {
		if v == nil || strings.TrimSpace(*v) == "" {
			continue
		}

		value := *v
		if name == entity.FieldEmail || name == entity.FieldFullName {
			value = strings.TrimSpace(value)
		}
		if name == entity.FieldEmail {
			fields[entity.FieldEmailIndex] = h.d.Codec.Index(value)
		}

		sealed, err := h.d.Codec.Seal(value)
		if err != nil {
			logger.Error("failed to seal field", zap.Error(err), zap.String("field", name))
			return nil, errs.ErrCryptographic
		}
		fields[name] = sealed
	}

	return fields, nil
}

func (h *studentHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	logger := requestLogger(c)

	id, err := parseID(c)
	if err != nil {
		return err
	}

	req := &UpdateStudentRequest{}
	if err := c.Bind(req); err != nil {
		return errs.ErrInvalidBody
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		req.Email = &email
	}

	if err := c.Validate(req); err != nil {
		return err
	}

	fields, err := h.fields(logger, req)
	if err != nil {
		return err
	}

	s, err := h.d.Students.Update(ctx, id, fields)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return errs.ErrNotFound
		case errors.Is(err, store.ErrDuplicate):
			return errs.ErrAlreadyExists
		}

		logger.Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}
	events.Emit(ctx, h.d.Events, events.New(events.Updated, id.Hex()))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Student updated successfully",
		"student": open(h.d.Codec, s),
	})
}

func (h *studentHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.d.Students.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrNotFound
		}

		requestLogger(c).Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}
	events.Emit(ctx, h.d.Events, events.New(events.Deleted, id.Hex()))

	return c.JSON(http.StatusOK, echo.Map{"message": "Student deleted successfully"})
}
