package handler

import (
	"crypto/subtle"
	"errors"
	netmail "net/mail"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"student-records-backend/codec"
	"student-records-backend/entity"
	"student-records-backend/errs"
	"student-records-backend/events"
	"student-records-backend/jwt"
	"student-records-backend/mail"
	"student-records-backend/store"
)

type RegisterRequest struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required"`
	Dob      string `json:"dob" validate:"required"`
	Gender   string `json:"gender" validate:"required"`
	Address  string `json:"address" validate:"required"`
	Course   string `json:"course" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type authHandler struct {
	d Deps
}

func NewAuthHandler(d Deps) *authHandler {
	return &authHandler{d: d.withDefaults()}
}

// newStudent seals the personal fields of req and hashes its password.
func newStudent(d Deps, logger *zap.Logger, req *RegisterRequest) (*entity.Student, error) {
	email := strings.TrimSpace(req.Email)
	now := time.Now().UTC()
	s := &entity.Student{
		ID:         primitive.NewObjectID(),
		FullName:   strings.TrimSpace(req.FullName),
		Email:      email,
		Phone:      req.Phone,
		Dob:        req.Dob,
		Gender:     req.Gender,
		Address:    req.Address,
		Course:     req.Course,
		EmailIndex: d.Codec.Index(email),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := d.Codec.SealStruct(s); err != nil {
		logger.Error("failed to seal student", zap.Error(err))
		return nil, errs.ErrCryptographic
	}

	hash, err := hashPassword(logger, req.Password, d.BcryptCost)
	if err != nil {
		return nil, err
	}
	s.Password = hash

	return s, nil
}

func (h *authHandler) tokens(s *entity.Student) (access, refresh string, err error) {
	access, err = h.d.JWT.NewAccessToken(s)
	if err != nil {
		return "", "", errs.ErrJWT
	}
	refresh, err = h.d.JWT.NewRefreshToken(s)
	if err != nil {
		return "", "", errs.ErrJWT
	}
	return access, refresh, nil
}

func (h *authHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	logger := requestLogger(c)

	req := &RegisterRequest{}
	if err := c.Bind(req); err != nil {
		return errs.ErrInvalidBody
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Password = h.d.Transit.Open(req.Password)

	if err := c.Validate(req); err != nil {
		return err
	}

	s, err := newStudent(h.d, logger, req)
	if err != nil {
		return err
	}

	if err := h.d.Students.Create(ctx, s); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return errs.ErrAlreadyExists
		}

		logger.Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}
	events.Emit(ctx, h.d.Events, events.New(events.Registered, s.ID.Hex()))

	access, refresh, err := h.tokens(s)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message":      "Student registered successfully",
		"id":           s.ID.Hex(),
		"token":        access,
		"refreshToken": refresh,
	})
}

// checkPassword accepts bcrypt hashes and, for records written before
// passwords were hashed, reversibly encrypted passwords. The second return
// reports whether the stored value should be replaced with a hash.
func (h *authHandler) checkPassword(s *entity.Student, password string) (bool, bool, error) {
	if codec.IsSealed(s.Password) || codec.IsPassphraseFormat(s.Password) {
		stored, err := h.d.Codec.Decrypt(s.Password)
		if err != nil {
			return false, false, nil
		}
		return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, true, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(s.Password), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, false, nil
		}
		return false, false, errs.ErrCryptographic
	}
	return true, false, nil
}

func (h *authHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	logger := requestLogger(c)

	req := &LoginRequest{}
	if err := c.Bind(req); err != nil {
		return errs.ErrInvalidBody
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Password = h.d.Transit.Open(req.Password)

	if err := c.Validate(req); err != nil {
		return err
	}

	s, err := h.d.Students.FindByEmailIndex(ctx, h.d.Codec.Index(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrInvalidEmailOrPassword
		}

		logger.Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}

	ok, upgrade, err := h.checkPassword(s, req.Password)
	if err != nil {
		return err
	}
	if !ok {
		logger.Debug("invalid password", zap.String("studentID", s.ID.Hex()))
		return errs.ErrInvalidEmailOrPassword
	}

	if upgrade {
		hash, err := hashPassword(logger, req.Password, h.d.BcryptCost)
		if err != nil {
			return err
		}
		if err := h.d.Students.SetPassword(ctx, s.ID, hash); err != nil {
			logger.Warn("unable to upgrade stored password", zap.Error(err))
		}
	}

	access, refresh, err := h.tokens(s)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":      "Login successful",
		"token":        access,
		"refreshToken": refresh,
		"student":      open(h.d.Codec, s),
	})
}

func (h *authHandler) RefreshToken(c echo.Context) error {
	ctx := c.Request().Context()
	logger := requestLogger(c)

	req := &RefreshTokenRequest{}
	if err := c.Bind(req); err != nil {
		return errs.ErrInvalidBody
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	claims, err := h.d.JWT.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return errs.ErrTokenExpired
		}
		return errs.ErrUnauthorized
	}

	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return errs.ErrUnauthorized
	}

	s, err := h.d.Students.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrUnauthorized
		}

		logger.Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}

	access, err := h.d.JWT.NewAccessToken(s)
	if err != nil {
		return errs.ErrJWT
	}

	return c.JSON(http.StatusOK, echo.Map{"token": access})
}

func (h *authHandler) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()

	claims, ok := getClaims(c)
	if !ok {
		return errs.ErrUnauthorized
	}
	logger := requestLogger(c).With(zap.String("studentID", claims.UserID))

	req := &ChangePasswordRequest{}
	if err := c.Bind(req); err != nil {
		return errs.ErrInvalidBody
	}
	req.CurrentPassword = h.d.Transit.Open(req.CurrentPassword)
	req.NewPassword = h.d.Transit.Open(req.NewPassword)

	if err := c.Validate(req); err != nil {
		return err
	}
	if req.CurrentPassword == req.NewPassword {
		return errs.ErrSamePassword
	}

	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return errs.ErrUnauthorized
	}

	s, err := h.d.Students.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrNotFound
		}

		logger.Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}

	ok, _, err = h.checkPassword(s, req.CurrentPassword)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrCurrentPassword
	}

	hash, err := hashPassword(logger, req.NewPassword, h.d.BcryptCost)
	if err != nil {
		return err
	}

	if err := h.d.Students.SetPassword(ctx, id, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrNotFound
		}

		logger.Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}
	events.Emit(ctx, h.d.Events, events.New(events.PasswordChanged, claims.UserID))

	return c.JSON(http.StatusOK, echo.Map{"message": "Password changed successfully"})
}

func (h *authHandler) ForgotPassword(c echo.Context) error {
	ctx := c.Request().Context()
	logger := requestLogger(c)

	req := &ForgotPasswordRequest{}
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

	s, err := h.d.Students.FindByEmailIndex(ctx, h.d.Codec.Index(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrNotFound
		}

		logger.Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}

	token, err := h.d.JWT.NewResetToken(s, email)
	if err != nil {
		return errs.ErrJWT
	}

	msg, err := mail.ResetMessage(h.d.FrontendURL, email, token, h.d.ResetTTL)
	if err != nil {
		logger.Error("unable to render reset email", zap.Error(err))
		return errs.ErrMail
	}

	if _, err := h.d.Mail.Send(ctx, msg); err != nil {
		logger.Error("unable to send reset email", zap.Error(err))
		return errs.ErrMail
	}
	events.Emit(ctx, h.d.Events, events.New(events.ResetRequested, s.ID.Hex()))

	return c.JSON(http.StatusOK, echo.Map{"message": "Password reset link sent to your email"})
}

func (h *authHandler) ResetPassword(c echo.Context) error {
	ctx := c.Request().Context()
	logger := requestLogger(c)

	req := &ResetPasswordRequest{}
	if err := c.Bind(req); err != nil {
		return errs.ErrInvalidBody
	}
	req.Password = h.d.Transit.Open(req.Password)

	if err := c.Validate(req); err != nil {
		return err
	}

	claims, err := h.d.JWT.ValidateResetToken(req.Token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return errs.ErrTokenExpired
		}
		return errs.ErrInvalidResetToken
	}

	id, err := primitive.ObjectIDFromHex(claims.ID)
	if err != nil {
		return errs.ErrInvalidResetToken
	}

	s, err := h.d.Students.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrInvalidResetToken
		}

		logger.Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}

	// The token is void once the student's email changes.
	if subtle.ConstantTimeCompare([]byte(s.EmailIndex), []byte(h.d.Codec.Index(claims.Email))) != 1 {
		return errs.ErrInvalidResetToken
	}

	hash, err := hashPassword(logger, req.Password, h.d.BcryptCost)
	if err != nil {
		return err
	}

	if err := h.d.Students.SetPassword(ctx, id, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrInvalidResetToken
		}

		logger.Error("database error", zap.Error(err))
		return errs.ErrDatabase
	}
	events.Emit(ctx, h.d.Events, events.New(events.PasswordReset, s.ID.Hex()))

	return c.JSON(http.StatusOK, echo.Map{"message": "Password has been reset"})
}
