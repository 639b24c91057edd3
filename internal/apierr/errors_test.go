package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromResponse(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		kind     Kind
		message  string
		fields   map[string][]string
		question string
	}{
		{
			name:    "detail",
			status:  http.StatusUnauthorized,
			body:    `{"detail":"Token is blacklisted","code":"token_not_valid"}`,
			kind:    AuthExpired,
			message: "Token is blacklisted",
			fields:  map[string][]string{"code": {"token_not_valid"}},
		},
		{
			name:    "detail wins over message",
			status:  http.StatusBadRequest,
			body:    `{"message":"second","detail":"first"}`,
			kind:    ValidationRejected,
			message: "first",
		},
		{
			name:    "field errors",
			status:  http.StatusBadRequest,
			body:    `{"username":["A user with that username already exists."],"email":["Enter a valid email address.","Too long."]}`,
			kind:    ValidationRejected,
			message: "email: Enter a valid email address. Too long.; username: A user with that username already exists.",
			fields: map[string][]string{
				"username": {"A user with that username already exists."},
				"email":    {"Enter a valid email address.", "Too long."},
			},
		},
		{
			name:     "challenge",
			status:   http.StatusForbidden,
			body:     `{"detail":"IP blocked","captcha_question":"2+2?"}`,
			kind:     Forbidden,
			message:  "IP blocked",
			question: "2+2?",
		},
		{
			name:    "plain text",
			status:  http.StatusBadGateway,
			body:    "upstream unavailable\n",
			kind:    ServerFault,
			message: "upstream unavailable",
		},
		{
			name:    "empty body",
			status:  http.StatusTooManyRequests,
			kind:    RateLimited,
			message: "Too Many Requests",
		},
		{
			name:    "json array",
			status:  http.StatusNotFound,
			body:    `["nope"]`,
			kind:    NotFound,
			message: `["nope"]`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := FromResponse(tc.status, []byte(tc.body))
			assert.Equal(t, tc.kind, e.Kind)
			assert.Equal(t, tc.status, e.Status)
			assert.Equal(t, tc.message, e.Message)
			assert.Equal(t, tc.fields, e.Fields)
			assert.Equal(t, tc.question, e.Question)
		})
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("failed to load tasks: %w", Wrap(Transport, cause, "GET /tasks/ not sent"))

	assert.True(t, errors.Is(err, Transport))
	assert.False(t, errors.Is(err, ServerFault))
	assert.True(t, errors.Is(err, cause))

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "transport: GET /tasks/ not sent: connection refused", apiErr.Error())
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Token is blacklisted", Message(FromResponse(401, []byte(`{"detail":"Token is blacklisted"}`)), "Login failed"))
	assert.Equal(t, "Login failed", Message(errors.New("boom"), "Login failed"))
	assert.Equal(t, "Login failed", Message(&Error{Kind: Unknown}, "Login failed"))
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, AuthExpired, KindForStatus(401))
	assert.Equal(t, Forbidden, KindForStatus(403))
	assert.Equal(t, ServerFault, KindForStatus(503))
	assert.Equal(t, Unknown, KindForStatus(409))
}
