// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/recovery/internal/auth"
	"github.com/holomush/recovery/internal/auth/mocks"
	"github.com/holomush/recovery/internal/httpapi"
)

type stubService struct {
	requestErr error
	confirmErr error

	gotEmail    string
	gotToken    string
	gotPassword string
}

func (s *stubService) RequestReset(_ context.Context, email string) error {
	s.gotEmail = email
	return s.requestErr
}

func (s *stubService) ConfirmReset(_ context.Context, token, newPassword string) error {
	s.gotToken = token
	s.gotPassword = newPassword
	return s.confirmErr
}

func (s *stubService) Policy() auth.PasswordPolicy { return auth.NewPasswordPolicy() }

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func TestRequest_Accepted(t *testing.T) {
	svc := &stubService{}
	router := httpapi.NewRouter(svc, httpapi.RouterOptions{Logger: quietLogger()})

	rec, body := do(t, router, http.MethodPost, "/api/v1/password-reset/request", `{"email":"Alice@Example.com"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, httpapi.RequestAcceptedMessage, body["message"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Alice@Example.com", svc.gotEmail)
}

func TestRequest_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"rate limited", oops.Code(auth.CodeRateLimited).Errorf("slow down"), http.StatusTooManyRequests, httpapi.CodeRateLimited},
		{"invalid email", oops.Code(auth.CodeInvalidEmailFormat).Errorf("bad"), http.StatusUnprocessableEntity, httpapi.CodeInvalidEmail},
		{"store failure", oops.Code("RESET_REQUEST_FAILED").Wrap(errors.New("db down")), http.StatusInternalServerError, httpapi.CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := httpapi.NewRouter(&stubService{requestErr: tt.err}, httpapi.RouterOptions{Logger: quietLogger()})

			rec, body := do(t, router, http.MethodPost, "/api/v1/password-reset/request", `{"email":"a@b.co"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRequest_ServerErrorCarriesRequestIDOnly(t *testing.T) {
	svc := &stubService{requestErr: oops.Code("RESET_REQUEST_FAILED").Wrap(errors.New("connection refused to 10.0.0.5"))}
	router := httpapi.NewRouter(svc, httpapi.RouterOptions{Logger: quietLogger()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/password-reset/request", strings.NewReader(`{"email":"a@b.co"}`))
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")

	var body httpapi.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-123", body.Details["request_id"])
}

func TestRequest_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `email=a@b.co`},
		{"unknown field", `{"email":"a@b.co","admin":true}`},
		{"trailing object", `{"email":"a@b.co"}{"email":"c@d.co"}`},
		{"empty", ``},
		{"wrong type", `{"email":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			router := httpapi.NewRouter(svc, httpapi.RouterOptions{Logger: quietLogger()})

			rec, body := do(t, router, http.MethodPost, "/api/v1/password-reset/request", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, httpapi.CodeInvalidRequest, body["code"])
			assert.Empty(t, svc.gotEmail)
		})
	}
}

func TestRequest_OversizedBody(t *testing.T) {
	router := httpapi.NewRouter(&stubService{}, httpapi.RouterOptions{Logger: quietLogger()})
	payload := `{"email":"` + strings.Repeat("a", httpapi.MaxBodyBytes) + `@b.co"}`

	rec, body := do(t, router, http.MethodPost, "/api/v1/password-reset/request", payload)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httpapi.CodeInvalidRequest, body["code"])
}

func TestConfirm_Success(t *testing.T) {
	svc := &stubService{}
	router := httpapi.NewRouter(svc, httpapi.RouterOptions{Logger: quietLogger()})

	rec, body := do(t, router, http.MethodPost, "/api/v1/password-reset/confirm",
		`{"token":"tok","new_password":"Str0ng!Pass"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, httpapi.ResetCompletedMessage, body["message"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "tok", svc.gotToken)
	assert.Equal(t, "Str0ng!Pass", svc.gotPassword)
}

func TestConfirm_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid token", oops.Code(auth.CodeInvalidOrExpiredToken).Errorf("nope"), http.StatusBadRequest, httpapi.CodeInvalidToken},
		{"user gone", oops.Code(auth.CodeUserResolutionFailed).Errorf("gone"), http.StatusBadRequest, httpapi.CodeUserNotFound},
		{"update failed", oops.Code("RESET_PASSWORD_FAILED").Wrap(errors.New("boom")), http.StatusInternalServerError, httpapi.CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := httpapi.NewRouter(&stubService{confirmErr: tt.err}, httpapi.RouterOptions{Logger: quietLogger()})

			rec, body := do(t, router, http.MethodPost, "/api/v1/password-reset/confirm",
				`{"token":"tok","new_password":"Str0ng!Pass"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestRequirements(t *testing.T) {
	router := httpapi.NewRouter(&stubService{}, httpapi.RouterOptions{Logger: quietLogger()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/password-reset/requirements", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body httpapi.RequirementsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, auth.NewPasswordPolicy().Requirements(), body.Requirements)
}

func TestRouter_UnknownRouteAndMethod(t *testing.T) {
	router := httpapi.NewRouter(&stubService{}, httpapi.RouterOptions{Logger: quietLogger()})

	rec, body := do(t, router, http.MethodGet, "/api/v1/password-reset/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httpapi.CodeNotFound, body["code"])

	rec, body = do(t, router, http.MethodGet, "/api/v1/password-reset/request", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, httpapi.CodeMethodNotAllow, body["code"])
}

func TestRouter_CORS(t *testing.T) {
	router := httpapi.NewRouter(&stubService{}, httpapi.RouterOptions{
		Logger:         quietLogger(),
		AllowedOrigins: []string{"https://app.example.com"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/password-reset/request", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/password-reset/request", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_LogsWithoutQueryString(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	router := httpapi.NewRouter(&stubService{}, httpapi.RouterOptions{Logger: logger})

	do(t, router, http.MethodGet, "/api/v1/password-reset/requirements?token=secret-token", "")

	out := buf.String()
	assert.Contains(t, out, `"route":"/api/v1/password-reset/requirements"`)
	assert.Contains(t, out, `"status":200`)
	assert.NotContains(t, out, "secret-token")
}

// The remaining tests drive the real service so the error envelope is
// checked against the errors it actually produces.

type realDeps struct {
	users   *mocks.MockUserDirectory
	tokens  *mocks.MockResetTokenStore
	limiter *mocks.MockRateLimiter
	mailer  *mocks.MockResetMailer
}

func newRealRouter(t *testing.T) (http.Handler, realDeps) {
	t.Helper()
	d := realDeps{
		users:   mocks.NewMockUserDirectory(t),
		tokens:  mocks.NewMockResetTokenStore(t),
		limiter: mocks.NewMockRateLimiter(t),
		mailer:  mocks.NewMockResetMailer(t),
	}

	svc, err := auth.NewPasswordResetService(d.users, d.tokens, d.limiter, d.mailer, "https://app.example.com",
		auth.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return httpapi.NewRouter(svc, httpapi.RouterOptions{Logger: quietLogger()}), d
}

func TestConfirm_WeakPasswordDetails(t *testing.T) {
	router, _ := newRealRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/password-reset/confirm",
		strings.NewReader(`{"token":"anything","new_password":"short1!"}`)))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body httpapi.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, httpapi.CodeWeakPassword, body.Code)
	assert.Equal(t, []any{"min_length", "uppercase"}, body.Details["violations"])

	policy := auth.NewPasswordPolicy()
	assert.Equal(t, []any{
		policy.Describe(auth.ViolationMinLength),
		policy.Describe(auth.ViolationUppercase),
	}, body.Details["requirements"])
}

func TestConfirm_UnknownTokenThroughService(t *testing.T) {
	router, d := newRealRouter(t)
	d.tokens.On("FindActiveByHash", mock.Anything, auth.HashResetToken("missing")).Return(nil, auth.ErrNotFound)

	rec, body := do(t, router, http.MethodPost, "/api/v1/password-reset/confirm",
		`{"token":"missing","new_password":"Str0ng!Pass"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httpapi.CodeInvalidToken, body["code"])
}

func TestConfirm_DeletedAccountThroughService(t *testing.T) {
	router, d := newRealRouter(t)
	userID := ulid.Make()
	d.tokens.On("FindActiveByHash", mock.Anything, auth.HashResetToken("tok")).Return(&auth.ResetToken{
		ID: 9, UserID: userID, ExpiresAt: time.Now().Add(time.Hour),
	}, nil)
	d.tokens.On("Consume", mock.Anything, int64(9)).Return(nil)
	d.users.On("GetByID", mock.Anything, userID).Return(nil, auth.ErrNotFound)

	rec, body := do(t, router, http.MethodPost, "/api/v1/password-reset/confirm",
		`{"token":"tok","new_password":"Str0ng!Pass"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httpapi.CodeUserNotFound, body["code"])
}

func TestRequest_SameResponseForKnownAndUnknown(t *testing.T) {
	router, d := newRealRouter(t)
	alice := &auth.User{ID: ulid.Make(), Email: "alice@example.com"}

	d.limiter.On("Allow", mock.Anything, mock.Anything).Return(true, nil)
	d.users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, auth.ErrNotFound)
	d.users.On("GetByEmail", mock.Anything, "alice@example.com").Return(alice, nil)
	d.tokens.On("CreateActive", mock.Anything, alice.ID, mock.Anything, mock.Anything).Return(nil)
	d.mailer.On("SendPasswordReset", mock.Anything, mock.Anything).Return(nil)

	unknown, _ := do(t, router, http.MethodPost, "/api/v1/password-reset/request", `{"email":"ghost@example.com"}`)
	known, _ := do(t, router, http.MethodPost, "/api/v1/password-reset/request", `{"email":"alice@example.com"}`)

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
}
