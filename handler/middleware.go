package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"student-records-backend/errs"
	"student-records-backend/jwt"
	"student-records-backend/log"
)

const claimsKey = "claims"

func extractBearer(c echo.Context) (string, error) {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if h == "" {
		return "", errs.ErrUnauthorized
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errs.ErrUnauthorized
	}
	return parts[1], nil
}

// RequireAuth accepts a valid access token and stores its claims on the
// context.
func RequireAuth(j *jwt.JWT) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, err := extractBearer(c)
			if err != nil {
				return err
			}

			claims, err := j.ValidateAccessToken(tok)
			if err != nil {
				if errors.Is(err, jwt.ErrExpired) {
					return errs.ErrTokenExpired
				}
				return errs.ErrUnauthorized
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func RequireAdmin(j *jwt.JWT) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, err := extractBearer(c)
			if err != nil {
				return err
			}

			if _, err := j.ValidateAdminToken(tok); err != nil {
				if errors.Is(err, jwt.ErrExpired) {
					return errs.ErrTokenExpired
				}
				return errs.ErrNotAdmin
			}

			return next(c)
		}
	}
}

func getClaims(c echo.Context) (*jwt.AccessClaims, bool) {
	claims, ok := c.Get(claimsKey).(*jwt.AccessClaims)
	return claims, ok
}

// APIKey checks the x-api-key header the browser client sends.
func APIKey(key string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:x-api-key",
		Validator: func(got string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
		},
	})
}

func requestLogging() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("requestID", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Logger.Info("request", fields...)
			return nil
		},
	})
}
