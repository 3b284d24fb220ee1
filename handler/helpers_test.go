package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"student-records-backend/codec"
	"student-records-backend/config"
	"student-records-backend/events"
	"student-records-backend/handler"
	"student-records-backend/jwt"
	"student-records-backend/mail"
	"student-records-backend/store/sqlite"
)

const (
	testSecret    = "backend_secret"
	testJWTSecret = "test-key"
	testIssuer    = "student-records-test"
	frontendURL   = "http://frontend.local"
	clientURL     = "http://client.local"
)

var jwtConfig = config.JWT{
	Secret:     testJWTSecret,
	Issuer:     testIssuer,
	AccessTTL:  time.Hour,
	RefreshTTL: 2 * time.Hour,
	ResetTTL:   time.Hour,
}

type outbox struct {
	mu   sync.Mutex
	sent []*mail.Message
	err  error
}

func (o *outbox) Send(_ context.Context, m *mail.Message) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil {
		return "", o.err
	}
	o.sent = append(o.sent, m)
	return fmt.Sprintf("<%d@test>", len(o.sent)), nil
}

func (o *outbox) last() *mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	Expect(o.sent).NotTo(BeEmpty())
	return o.sent[len(o.sent)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []*events.StudentEvent
}

func (r *recorder) Publish(_ context.Context, e *events.StudentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type env struct {
	e      *echo.Echo
	store  *sqlite.SQLite
	codec  *codec.Codec
	jwt    *jwt.JWT
	outbox *outbox
	events *recorder
}

func newEnv(opts handler.Options, transit codec.Passphrase) *env {
	s, err := sqlite.New(":memory:")
	Expect(err).To(BeNil())

	cd, err := codec.New(testSecret, codec.Options{Iterations: 1000, Legacy: true})
	Expect(err).To(BeNil())

	en := &env{
		store:  s,
		codec:  cd,
		jwt:    jwt.NewJWT(jwtConfig),
		outbox: &outbox{},
		events: &recorder{},
	}
	en.e = handler.NewServer(handler.Deps{
		Students:    s,
		Codec:       cd,
		Transit:     transit,
		JWT:         en.jwt,
		Mail:        en.outbox,
		Events:      en.events,
		FrontendURL: frontendURL,
		ClientURL:   clientURL,
		ResetTTL:    time.Hour,
		BcryptCost:  bcrypt.MinCost,
	}, opts)

	return en
}

func (en *env) close() {
	Expect(en.store.Close(context.Background())).To(Succeed())
}

// do sends body as JSON. headers are name/value pairs.
func (en *env) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var r *bytes.Reader
	switch b := body.(type) {
	case nil:
		r = bytes.NewReader(nil)
	case string:
		r = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		Expect(err).To(BeNil())
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	en.e.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) []string {
	return []string{echo.HeaderAuthorization, "Bearer " + token}
}

func decode(rec *httptest.ResponseRecorder) map[string]interface{} {
	out := map[string]interface{}{}
	Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
	return out
}

// expectError checks status and that the body carries the coded error.
func expectError(rec *httptest.ResponseRecorder, status int, err error) {
	Expect(rec.Code).To(Equal(status), rec.Body.String())
	Expect(decode(rec)["error"]).To(Equal(err.Error()))
}

func registration(email string) map[string]string {
	return map[string]string{
		"fullName": "Jane Doe",
		"email":    email,
		"phone":    "+36 30 123 4567",
		"dob":      "2001-02-03",
		"gender":   "female",
		"address":  "1 Main Street",
		"course":   "Computer Science",
		"password": "correct horse",
	}
}

type student struct {
	ID           string
	Token        string
	RefreshToken string
}

func (en *env) register(email string) student {
	rec := en.do(http.MethodPost, "/api/register", registration(email))
	Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())

	body := decode(rec)
	return student{
		ID:           body["id"].(string),
		Token:        body["token"].(string),
		RefreshToken: body["refreshToken"].(string),
	}
}

func (en *env) login(email, password string) *httptest.ResponseRecorder {
	return en.do(http.MethodPost, "/api/login", map[string]string{"email": email, "password": password})
}

// resetToken pulls the token out of the last reset email.
func (en *env) resetToken() string {
	text := en.outbox.last().Text
	i := strings.Index(text, "token=")
	Expect(i).To(BeNumerically(">=", 0))

	token := text[i+len("token="):]
	if j := strings.IndexByte(token, '\n'); j >= 0 {
		token = token[:j]
	}
	return token
}

var errBoom = errors.New("boom")

func decodeList(rec *httptest.ResponseRecorder) []map[string]interface{} {
	var out []map[string]interface{}
	Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
	return out
}
