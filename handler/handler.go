package handler

import (
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
	"student-records-backend/log"
	"student-records-backend/mail"
	"student-records-backend/store"
)

const defaultBcryptCost = 10

// Deps are the collaborators shared by every handler.
type Deps struct {
	Students store.Students
	Codec    *codec.Codec
	// Transit decrypts fields the client encrypted before sending. The zero
	// value passes values through.
	Transit codec.Passphrase
	JWT     *jwt.JWT
	Mail    mail.Sender
	Events  events.Publisher

	FrontendURL string
	ClientURL   string
	ResetTTL    time.Duration
	BcryptCost  int
}

func (d Deps) withDefaults() Deps {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Mail == nil {
		d.Mail = mail.LogSender{}
	}
	if d.BcryptCost == 0 {
		d.BcryptCost = defaultBcryptCost
	}
	if d.ResetTTL == 0 {
		d.ResetTTL = time.Hour
	}
	return d
}

func requestLogger(c echo.Context) *zap.Logger {
	return log.Logger.With(zap.String("requestID", c.Response().Header().Get(echo.HeaderXRequestID)))
}

func parseID(c echo.Context) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return primitive.NilObjectID, errs.ErrInvalidID
	}
	return id, nil
}

func hashPassword(logger *zap.Logger, password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		logger.Error("failed to generate bcrypt hash", zap.Error(err))
		return "", errs.ErrCryptographic
	}
	return string(hash), nil
}

// open returns a decrypted copy of s.
func open(cd *codec.Codec, s *entity.Student) *entity.Student {
	out := *s
	// OpenStruct only fails for non-pointers; undecryptable fields stay raw.
	_ = cd.OpenStruct(&out)
	return &out
}
