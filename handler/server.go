package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Options struct {
	// APIKey, when set, must be sent in the x-api-key header of every /api
	// request.
	APIKey string
	// RequireAdmin puts record management behind an admin token.
	RequireAdmin bool
	BodyLimit    string
}

func NewServer(d Deps, opts Options) *echo.Echo {
	d = d.withDefaults()
	if opts.BodyLimit == "" {
		opts.BodyLimit = "10M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogging())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "x-api-key"},
	}))
	e.Use(middleware.BodyLimit(opts.BodyLimit))

	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Welcome to the Student Records API")
	})

	api := e.Group("/api")
	if opts.APIKey != "" {
		api.Use(APIKey(opts.APIKey))
	}

	var manage []echo.MiddlewareFunc
	if opts.RequireAdmin {
		manage = append(manage, RequireAdmin(d.JWT))
	}

	auth := NewAuthHandler(d)
	api.POST("/register", auth.Register)
	api.POST("/login", auth.Login)
	api.POST("/refresh-token", auth.RefreshToken)
	api.POST("/change-password", auth.ChangePassword, RequireAuth(d.JWT))
	api.POST("/forgot-password", auth.ForgotPassword)
	api.POST("/reset-password", auth.ResetPassword)

	students := NewStudentHandler(d)
	api.GET("/students", students.List, manage...)
	api.GET("/student/:id", students.Get, manage...)
	api.PUT("/student/:id", students.Update, manage...)
	api.DELETE("/student/:id", students.Delete, manage...)

	api.POST("/student/invite", NewInviteHandler(d).Invite, manage...)
	api.POST("/students/import", NewImportHandler(d).Import, manage...)

	return e
}
