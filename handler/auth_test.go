package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"student-records-backend/codec"
	"student-records-backend/entity"
	"student-records-backend/errs"
	"student-records-backend/events"
	"student-records-backend/handler"
	"student-records-backend/jwt"
)

var _ = Describe("Auth", func() {
	var en *env

	BeforeEach(func() {
		en = newEnv(handler.Options{}, nil)
	})

	AfterEach(func() {
		en.close()
	})

	Describe("Register", func() {
		Specify("happy path", func() {
			s := en.register("jane@example.com")

			claims, err := en.jwt.ValidateAccessToken(s.Token)
			Expect(err).To(BeNil())
			Expect(claims.UserID).To(Equal(s.ID))

			rc, err := en.jwt.ValidateRefreshToken(s.RefreshToken)
			Expect(err).To(BeNil())
			Expect(rc.UserID).To(Equal(s.ID))

			Expect(en.events.types()).To(Equal([]events.Type{events.Registered}))
		})

		Specify("stores sealed fields and a password hash", func() {
			s := en.register("jane@example.com")
			id, err := primitive.ObjectIDFromHex(s.ID)
			Expect(err).To(BeNil())

			stored, err := en.store.Get(context.Background(), id)
			Expect(err).To(BeNil())
			Expect(codec.IsSealed(stored.FullName)).To(BeTrue())
			Expect(codec.IsSealed(stored.Email)).To(BeTrue())
			Expect(codec.IsSealed(stored.Course)).To(BeTrue())
			Expect(stored.Password).To(HavePrefix("$2"))
			Expect(stored.EmailIndex).To(Equal(en.codec.Index("jane@example.com")))
			Expect(en.codec.Open(stored.FullName)).To(Equal("Jane Doe"))
		})

		Specify("sad path - missing fields", func() {
			rec := en.do(http.MethodPost, "/api/register", map[string]string{"email": "nope", "password": "short"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))

			body := decode(rec)
			Expect(body["error"]).To(Equal("Validation failed"))
			details := body["details"].(map[string]interface{})
			Expect(details).To(HaveKeyWithValue("fullName", "fullName is required"))
			Expect(details).To(HaveKeyWithValue("email", "email must be a valid email address"))
			Expect(details).To(HaveKeyWithValue("password", "password must be at least 8 characters"))
			Expect(details).To(HaveKey("course"))
		})

		Specify("sad path - duplicate email ignores case", func() {
			en.register("jane@example.com")

			rec := en.do(http.MethodPost, "/api/register", registration(" JANE@example.com"))
			expectError(rec, http.StatusConflict, errs.ErrAlreadyExists)
		})

		Specify("padded email is trimmed", func() {
			rec := en.do(http.MethodPost, "/api/register", registration("  jane@example.com "))
			Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())

			Expect(en.login("jane@example.com", "correct horse").Code).To(Equal(http.StatusOK))
			Expect(en.login(" Jane@Example.com ", "correct horse").Code).To(Equal(http.StatusOK))
		})

		Specify("sad path - malformed body", func() {
			rec := en.do(http.MethodPost, "/api/register", `{"email":`)
			expectError(rec, http.StatusBadRequest, errs.ErrInvalidBody)
		})
	})

	Describe("Login", func() {
		BeforeEach(func() {
			en.register("jane@example.com")
		})

		Specify("happy path", func() {
			rec := en.login("jane@example.com", "correct horse")
			Expect(rec.Code).To(Equal(http.StatusOK))

			body := decode(rec)
			Expect(body["token"]).NotTo(BeEmpty())
			Expect(body["refreshToken"]).NotTo(BeEmpty())

			st := body["student"].(map[string]interface{})
			Expect(st["email"]).To(Equal("jane@example.com"))
			Expect(st["fullName"]).To(Equal("Jane Doe"))
			Expect(st).NotTo(HaveKey("password"))
			Expect(st).NotTo(HaveKey("email_index"))
		})

		Specify("unknown email and wrong password look the same", func() {
			wrong := en.login("jane@example.com", "battery staple")
			unknown := en.login("john@example.com", "correct horse")

			expectError(wrong, http.StatusUnauthorized, errs.ErrInvalidEmailOrPassword)
			expectError(unknown, http.StatusUnauthorized, errs.ErrInvalidEmailOrPassword)
			Expect(wrong.Body.String()).To(Equal(unknown.Body.String()))
		})

		Specify("sad path - missing password", func() {
			rec := en.do(http.MethodPost, "/api/login", map[string]string{"email": "jane@example.com"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)["details"]).To(HaveKeyWithValue("password", "password is required"))
		})
	})

	Describe("Login with records written in the passphrase format", func() {
		var id primitive.ObjectID

		BeforeEach(func() {
			id = primitive.NewObjectID()
			now := time.Now().UTC()
			Expect(en.store.Create(context.Background(), &entity.Student{
				ID:         id,
				FullName:   "U2FsdGVkX189NVF/HEi1onDR+80qXmljDavwzKgQ8Us=",
				Email:      "U2FsdGVkX18RSRZ17Ih0rAghheB+ZfMDv67ZgX/ll5zVAFub3m3/6MHeeS4dNMaE",
				EmailIndex: en.codec.Index("jane@example.com"),
				Password:   "U2FsdGVkX1/hItdR2tp8Nq7elffmwILEIeBizirQ9rA=",
				CreatedAt:  now,
				UpdatedAt:  now,
			})).To(Succeed())
		})

		Specify("accepts the old password and replaces it with a hash", func() {
			rec := en.login("jane@example.com", "hunter2-Secret")
			Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())

			st := decode(rec)["student"].(map[string]interface{})
			Expect(st["fullName"]).To(Equal("Jane Doe"))
			Expect(st["email"]).To(Equal("jane@example.com"))

			stored, err := en.store.Get(context.Background(), id)
			Expect(err).To(BeNil())
			Expect(stored.Password).To(HavePrefix("$2"))

			Expect(en.login("jane@example.com", "hunter2-Secret").Code).To(Equal(http.StatusOK))
		})

		Specify("rejects a wrong password", func() {
			rec := en.login("jane@example.com", "hunter3-Secret")
			expectError(rec, http.StatusUnauthorized, errs.ErrInvalidEmailOrPassword)
		})
	})

	Describe("Client encrypted passwords", func() {
		BeforeEach(func() {
			en.close()
			en = newEnv(handler.Options{}, codec.Passphrase("default_client_key"))
		})

		Specify("are decrypted before hashing", func() {
			req := registration("jane@example.com")
			req["password"] = "U2FsdGVkX19c2rEs5wqKy65H27yx/Ja1FAny5IIaJZw="
			rec := en.do(http.MethodPost, "/api/register", req)
			Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())

			Expect(en.login("jane@example.com", "Tr4nsit!pass").Code).To(Equal(http.StatusOK))
			Expect(en.login("jane@example.com", "U2FsdGVkX19c2rEs5wqKy65H27yx/Ja1FAny5IIaJZw=").Code).To(Equal(http.StatusOK))
		})
	})

	Describe("RefreshToken", func() {
		var s student

		BeforeEach(func() {
			s = en.register("jane@example.com")
		})

		Specify("happy path", func() {
			rec := en.do(http.MethodPost, "/api/refresh-token", map[string]string{"refreshToken": s.RefreshToken})
			Expect(rec.Code).To(Equal(http.StatusOK))

			claims, err := en.jwt.ValidateAccessToken(decode(rec)["token"].(string))
			Expect(err).To(BeNil())
			Expect(claims.UserID).To(Equal(s.ID))
		})

		Specify("sad path - access token", func() {
			rec := en.do(http.MethodPost, "/api/refresh-token", map[string]string{"refreshToken": s.Token})
			expectError(rec, http.StatusUnauthorized, errs.ErrUnauthorized)
		})

		Specify("sad path - expired", func() {
			cfg := jwtConfig
			cfg.RefreshTTL = -time.Minute
			id, _ := primitive.ObjectIDFromHex(s.ID)
			tok, err := jwt.NewJWT(cfg).NewRefreshToken(&entity.Student{ID: id})
			Expect(err).To(BeNil())

			rec := en.do(http.MethodPost, "/api/refresh-token", map[string]string{"refreshToken": tok})
			expectError(rec, http.StatusUnauthorized, errs.ErrTokenExpired)
		})

		Specify("sad path - deleted student", func() {
			id, _ := primitive.ObjectIDFromHex(s.ID)
			Expect(en.store.Delete(context.Background(), id)).To(Succeed())

			rec := en.do(http.MethodPost, "/api/refresh-token", map[string]string{"refreshToken": s.RefreshToken})
			expectError(rec, http.StatusUnauthorized, errs.ErrUnauthorized)
		})
	})

	Describe("ChangePassword", func() {
		var s student

		BeforeEach(func() {
			s = en.register("jane@example.com")
		})

		change := func(token, current, next string) int {
			rec := en.do(http.MethodPost, "/api/change-password", map[string]string{
				"currentPassword": current,
				"newPassword":     next,
			}, bearer(token)...)
			return rec.Code
		}

		Specify("happy path", func() {
			Expect(change(s.Token, "correct horse", "battery staple")).To(Equal(http.StatusOK))

			expectError(en.login("jane@example.com", "correct horse"), http.StatusUnauthorized, errs.ErrInvalidEmailOrPassword)
			Expect(en.login("jane@example.com", "battery staple").Code).To(Equal(http.StatusOK))
			Expect(en.events.types()).To(ContainElement(events.PasswordChanged))
		})

		Specify("sad path - no token", func() {
			rec := en.do(http.MethodPost, "/api/change-password", map[string]string{
				"currentPassword": "correct horse",
				"newPassword":     "battery staple",
			})
			expectError(rec, http.StatusUnauthorized, errs.ErrUnauthorized)
		})

		Specify("sad path - malformed header", func() {
			rec := en.do(http.MethodPost, "/api/change-password", nil, "Authorization", s.Token)
			expectError(rec, http.StatusUnauthorized, errs.ErrUnauthorized)
		})

		Specify("sad path - refresh token", func() {
			Expect(change(s.RefreshToken, "correct horse", "battery staple")).To(Equal(http.StatusUnauthorized))
		})

		Specify("sad path - expired token", func() {
			cfg := jwtConfig
			cfg.AccessTTL = -time.Minute
			id, _ := primitive.ObjectIDFromHex(s.ID)
			tok, err := jwt.NewJWT(cfg).NewAccessToken(&entity.Student{ID: id})
			Expect(err).To(BeNil())

			rec := en.do(http.MethodPost, "/api/change-password", map[string]string{
				"currentPassword": "correct horse",
				"newPassword":     "battery staple",
			}, bearer(tok)...)
			expectError(rec, http.StatusUnauthorized, errs.ErrTokenExpired)
		})

		Specify("sad path - wrong current password", func() {
			rec := en.do(http.MethodPost, "/api/change-password", map[string]string{
				"currentPassword": "wrong horse",
				"newPassword":     "battery staple",
			}, bearer(s.Token)...)
			expectError(rec, http.StatusBadRequest, errs.ErrCurrentPassword)
		})

		Specify("sad path - same password", func() {
			rec := en.do(http.MethodPost, "/api/change-password", map[string]string{
				"currentPassword": "correct horse",
				"newPassword":     "correct horse",
			}, bearer(s.Token)...)
			expectError(rec, http.StatusBadRequest, errs.ErrSamePassword)
		})

		Specify("sad path - short password", func() {
			rec := en.do(http.MethodPost, "/api/change-password", map[string]string{
				"currentPassword": "correct horse",
				"newPassword":     "short",
			}, bearer(s.Token)...)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)["details"]).To(HaveKey("newPassword"))
		})
	})

	Describe("ForgotPassword", func() {
		BeforeEach(func() {
			en.register("jane@example.com")
		})

		Specify("happy path", func() {
			rec := en.do(http.MethodPost, "/api/forgot-password", map[string]string{"email": "Jane@Example.com"})
			Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())

			m := en.outbox.last()
			Expect(m.To).To(Equal("Jane@Example.com"))
			Expect(m.Subject).To(Equal("Password Reset"))
			Expect(m.Text).To(ContainSubstring(frontendURL + "/reset-password?token="))

			claims, err := en.jwt.ValidateResetToken(en.resetToken())
			Expect(err).To(BeNil())
			Expect(claims.Email).To(Equal("Jane@Example.com"))
			Expect(en.events.types()).To(ContainElement(events.ResetRequested))
		})

		Specify("sad path - missing email", func() {
			expectError(en.do(http.MethodPost, "/api/forgot-password", map[string]string{}), http.StatusBadRequest, errs.ErrEmailRequired)
		})

		Specify("sad path - unknown email", func() {
			rec := en.do(http.MethodPost, "/api/forgot-password", map[string]string{"email": "john@example.com"})
			expectError(rec, http.StatusNotFound, errs.ErrNotFound)
			Expect(en.outbox.sent).To(BeEmpty())
		})

		Specify("sad path - mail failure", func() {
			en.outbox.err = errBoom
			rec := en.do(http.MethodPost, "/api/forgot-password", map[string]string{"email": "jane@example.com"})
			expectError(rec, http.StatusBadGateway, errs.ErrMail)
		})
	})

	Describe("ResetPassword", func() {
		var s student

		BeforeEach(func() {
			s = en.register("jane@example.com")
		})

		reset := func(token, password string) *httptest.ResponseRecorder {
			return en.do(http.MethodPost, "/api/reset-password", map[string]string{"token": token, "password": password})
		}

		requestReset := func() string {
			rec := en.do(http.MethodPost, "/api/forgot-password", map[string]string{"email": "jane@example.com"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			return en.resetToken()
		}

		Specify("happy path", func() {
			tok := requestReset()

			rec := reset(tok, "battery staple")
			Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
			Expect(en.login("jane@example.com", "battery staple").Code).To(Equal(http.StatusOK))
			Expect(en.events.types()).To(ContainElement(events.PasswordReset))
		})

		Specify("tokens stay usable until they expire", func() {
			tok := requestReset()

			Expect(reset(tok, "battery staple").Code).To(Equal(http.StatusOK))
			Expect(reset(tok, "staple battery").Code).To(Equal(http.StatusOK))
			Expect(en.login("jane@example.com", "staple battery").Code).To(Equal(http.StatusOK))
		})

		Specify("sad path - expired", func() {
			cfg := jwtConfig
			cfg.ResetTTL = -time.Minute
			id, _ := primitive.ObjectIDFromHex(s.ID)
			tok, err := jwt.NewJWT(cfg).NewResetToken(&entity.Student{ID: id}, "jane@example.com")
			Expect(err).To(BeNil())

			expectError(reset(tok, "battery staple"), http.StatusUnauthorized, errs.ErrTokenExpired)
		})

		Specify("sad path - garbage", func() {
			expectError(reset("not.a.token", "battery staple"), http.StatusBadRequest, errs.ErrInvalidResetToken)
		})

		Specify("sad path - foreign signature", func() {
			cfg := jwtConfig
			cfg.Secret = "other-key"
			id, _ := primitive.ObjectIDFromHex(s.ID)
			tok, err := jwt.NewJWT(cfg).NewResetToken(&entity.Student{ID: id}, "jane@example.com")
			Expect(err).To(BeNil())

			expectError(reset(tok, "battery staple"), http.StatusBadRequest, errs.ErrInvalidResetToken)
		})

		Specify("sad path - access token", func() {
			expectError(reset(s.Token, "battery staple"), http.StatusBadRequest, errs.ErrInvalidResetToken)
		})

		Specify("sad path - email changed since", func() {
			tok := requestReset()

			rec := en.do(http.MethodPut, "/api/student/"+s.ID, map[string]string{"email": "jane.doe@example.com"})
			Expect(rec.Code).To(Equal(http.StatusOK))

			expectError(reset(tok, "battery staple"), http.StatusBadRequest, errs.ErrInvalidResetToken)
		})

		Specify("sad path - student deleted", func() {
			tok := requestReset()
			Expect(en.do(http.MethodDelete, "/api/student/"+s.ID, nil).Code).To(Equal(http.StatusOK))

			expectError(reset(tok, "battery staple"), http.StatusBadRequest, errs.ErrInvalidResetToken)
		})

		Specify("sad path - short password", func() {
			tok := requestReset()
			rec := reset(tok, "short")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)["details"]).To(HaveKey("password"))
			Expect(strings.Contains(rec.Body.String(), "at least 8")).To(BeTrue())
		})
	})
})
