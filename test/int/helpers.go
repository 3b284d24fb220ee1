package int

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/gomega"
)

// BackendError is a non-2xx answer from the server.
type BackendError struct {
	Status  int
	Message string
	Details map[string]string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

func NewClient() *Client {
	return &Client{
		base:   strings.TrimRight(os.Getenv("INT_BASE_URL"), "/"),
		apiKey: os.Getenv("INT_API_KEY"),
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Do sends in as JSON and decodes the answer into out. Non-2xx answers are
// returned as *BackendError.
func (c *Client) Do(method, path, token string, in, out interface{}) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, c.base+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		var e struct {
			Error   string            `json:"error"`
			Details map[string]string `json:"details"`
		}
		_ = json.NewDecoder(res.Body).Decode(&e)
		return &BackendError{Status: res.StatusCode, Message: e.Error, Details: e.Details}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func uniqueEmail() string {
	return "int-" + uuid.NewString() + "@example.com"
}

type User struct {
	ID           string
	Email        string
	Password     string
	AccessToken  string
	RefreshToken string
	client       *Client
}

type tokens struct {
	ID           string `json:"id"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func registerUser(c *Client) (user User) {
	user.Email = uniqueEmail()
	user.Password = "testtest"
	user.client = c

	res := &tokens{}
	err := c.Do(http.MethodPost, "/api/register", "", map[string]string{
		"fullName": "Int Test",
		"email":    user.Email,
		"phone":    "0",
		"dob":      "2000-01-01",
		"gender":   "other",
		"address":  "nowhere",
		"course":   "testing",
		"password": user.Password,
	}, res)
	Expect(err).To(BeNil())
	Expect(res.Token).NotTo(BeEmpty())
	Expect(res.RefreshToken).NotTo(BeEmpty())

	user.ID = res.ID
	user.AccessToken = res.Token
	user.RefreshToken = res.RefreshToken
	return
}

func (user *User) Refresh() {
	res := &tokens{}
	err := user.client.Do(http.MethodPost, "/api/refresh-token", "", map[string]string{
		"refreshToken": user.RefreshToken,
	}, res)

	Expect(err).To(BeNil())
	Expect(res.Token).NotTo(BeEmpty())
	user.AccessToken = res.Token
}

func (user *User) Delete() {
	err := user.client.Do(http.MethodDelete, "/api/student/"+user.ID, os.Getenv("INT_ADMIN_TOKEN"), nil, nil)
	Expect(err).To(BeNil())
}
