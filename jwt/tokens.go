package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"student-records-backend/config"
	"student-records-backend/entity"
	"student-records-backend/log"
)

var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

// Audiences keep one kind of token from being accepted as another.
const (
	audAccess  = "access"
	audRefresh = "refresh"
	audReset   = "reset"
	audAdmin   = "admin"
)

type AccessClaims struct {
	UserID string `json:"user_id"`
	jwt.StandardClaims
}

type RefreshClaims struct {
	UserID string `json:"user_id"`
	jwt.StandardClaims
}

// ResetClaims authorize a single password reset for the embedded student
// until they expire. They are not tracked server side.
type ResetClaims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	jwt.StandardClaims
}

type AdminClaims struct {
	IsAdmin bool `json:"is_admin"`
	jwt.StandardClaims
}

type JWT struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
}

func NewJWT(cfg config.JWT) *JWT {
	return &JWT{
		key:        []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		resetTTL:   cfg.ResetTTL,
	}
}

func (j *JWT) standard(aud string, ttl time.Duration) jwt.StandardClaims {
	now := time.Now()
	return jwt.StandardClaims{
		Audience:  aud,
		ExpiresAt: now.Add(ttl).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    j.issuer,
	}
}

func (j *JWT) sign(claims jwt.Claims) (string, error) {
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(j.key)
	if err != nil {
		log.Logger.Error("signing failure", zap.Error(err))
		return "", err
	}

	return ss, nil
}

func (j *JWT) NewAccessToken(s *entity.Student) (string, error) {
	return j.sign(&AccessClaims{
		UserID:         s.ID.Hex(),
		StandardClaims: j.standard(audAccess, j.accessTTL),
	})
}

func (j *JWT) NewRefreshToken(s *entity.Student) (string, error) {
	return j.sign(&RefreshClaims{
		UserID:         s.ID.Hex(),
		StandardClaims: j.standard(audRefresh, j.refreshTTL),
	})
}

// NewResetToken takes the plaintext email since s holds it sealed.
func (j *JWT) NewResetToken(s *entity.Student, email string) (string, error) {
	return j.sign(&ResetClaims{
		ID:             s.ID.Hex(),
		Email:          email,
		StandardClaims: j.standard(audReset, j.resetTTL),
	})
}

func (j *JWT) NewAdminToken(exp time.Time) (string, error) {
	c := j.standard(audAdmin, 0)
	c.ExpiresAt = exp.Unix()
	return j.sign(&AdminClaims{IsAdmin: true, StandardClaims: c})
}

func (j *JWT) ValidateAccessToken(token string) (*AccessClaims, error) {
	c := &AccessClaims{}
	if err := j.parse(token, c, audAccess); err != nil {
		return nil, err
	}
	return c, nil
}

func (j *JWT) ValidateRefreshToken(token string) (*RefreshClaims, error) {
	c := &RefreshClaims{}
	if err := j.parse(token, c, audRefresh); err != nil {
		return nil, err
	}
	return c, nil
}

func (j *JWT) ValidateResetToken(token string) (*ResetClaims, error) {
	c := &ResetClaims{}
	if err := j.parse(token, c, audReset); err != nil {
		return nil, err
	}
	if c.ID == "" || c.Email == "" {
		return nil, ErrInvalid
	}
	return c, nil
}

func (j *JWT) ValidateAdminToken(token string) (*AdminClaims, error) {
	c := &AdminClaims{}
	if err := j.parse(token, c, audAdmin); err != nil {
		return nil, err
	}
	if !c.IsAdmin {
		return nil, ErrInvalid
	}
	return c, nil
}

type audienced interface {
	jwt.Claims
	VerifyAudience(cmp string, req bool) bool
	VerifyIssuer(cmp string, req bool) bool
}

func (j *JWT) parse(token string, claims audienced, aud string) error {
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.key, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		// Expired counts only when nothing else is wrong with the token.
		if errors.As(err, &ve) && ve.Errors == jwt.ValidationErrorExpired {
			return ErrExpired
		}

		log.Logger.Debug("parse failure", zap.Error(err))
		return ErrInvalid
	}

	if !claims.VerifyAudience(aud, true) || !claims.VerifyIssuer(j.issuer, true) {
		return ErrInvalid
	}

	return nil
}
