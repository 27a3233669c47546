package authapi_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jsonHeader = http.Header{"Content-Type": []string{"application/json"}}

func loadContract(t *testing.T) *authapi.Contract {
	t.Helper()
	c, err := authapi.DefaultContract()
	require.NoError(t, err)
	return c
}

func TestContractDocumentsAllAuthRoutes(t *testing.T) {
	c := loadContract(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, authapi.PathLogin},
		{http.MethodPost, authapi.PathRegister},
		{http.MethodPost, authapi.PathRefresh},
		{http.MethodGet, authapi.PathMe},
		{http.MethodPost, authapi.PathLogout},
	}
	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			assert.True(t, c.Covers(route.method, route.path))
		})
	}
	assert.False(t, c.Covers(http.MethodGet, "/healthz"))
	assert.False(t, c.Covers(http.MethodDelete, authapi.PathLogin))
}

func TestValidateLoginResponse(t *testing.T) {
	c := loadContract(t)
	req := httptest.NewRequest(http.MethodPost, authapi.PathLogin, nil)

	tests := []struct {
		name  string
		body  string
		valid bool
	}{
		{
			name:  "complete",
			body:  `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":900,"user":{"id":"u1","email":"a@b.example","name":"A","role":"viewer","permissions":["dashboard:read"],"organization":"Org"}}`,
			valid: true,
		},
		{
			name:  "null organization",
			body:  `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":900,"user":{"id":"u1","email":"a@b.example","role":"viewer","permissions":null,"organization":null}}`,
			valid: true,
		},
		{
			name: "missing refresh token",
			body: `{"access_token":"a","token_type":"Bearer","expires_in":900,"user":{"id":"u1","email":"a@b.example","role":"viewer","permissions":[]}}`,
		},
		{
			name: "empty access token",
			body: `{"access_token":"","refresh_token":"r","token_type":"Bearer","expires_in":900,"user":{"id":"u1","email":"a@b.example","role":"viewer","permissions":[]}}`,
		},
		{
			name: "expires_in is a string",
			body: `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":"soon","user":{"id":"u1","email":"a@b.example","role":"viewer","permissions":[]}}`,
		},
		{
			name: "missing user",
			body: `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":900}`,
		},
		{
			name: "not json",
			body: `<html>gateway</html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ValidateResponse(context.Background(), authapi.PathLogin, req, http.StatusOK, jsonHeader, []byte(tt.body))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateRefreshResponseWithoutUser(t *testing.T) {
	c := loadContract(t)
	req := httptest.NewRequest(http.MethodPost, authapi.PathRefresh, nil)

	err := c.ValidateResponse(context.Background(), authapi.PathRefresh, req, http.StatusOK, jsonHeader,
		[]byte(`{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":900}`))
	assert.NoError(t, err)
}

func TestValidateErrorResponse(t *testing.T) {
	c := loadContract(t)
	req := httptest.NewRequest(http.MethodPost, authapi.PathRegister, nil)

	err := c.ValidateResponse(context.Background(), authapi.PathRegister, req, http.StatusUnprocessableEntity, jsonHeader,
		[]byte(`{"error":"validation_failed","error_description":"invalid","fields":{"password":"too short"}}`))
	assert.NoError(t, err)

	err = c.ValidateResponse(context.Background(), authapi.PathRegister, req, http.StatusUnprocessableEntity, jsonHeader,
		[]byte(`{"message":"no error code"}`))
	assert.Error(t, err)
}

func TestValidateRequest(t *testing.T) {
	c := loadContract(t)

	good := httptest.NewRequest(http.MethodPost, authapi.PathLogin, bytes.NewBufferString(`{"email":"a@b.example","password":"x"}`))
	good.Header.Set("Content-Type", "application/json")
	require.NoError(t, c.ValidateRequest(context.Background(), authapi.PathLogin, good))

	bad := httptest.NewRequest(http.MethodPost, authapi.PathLogin, bytes.NewBufferString(`{"email":"a@b.example"}`))
	bad.Header.Set("Content-Type", "application/json")
	assert.Error(t, c.ValidateRequest(context.Background(), authapi.PathLogin, bad))
}

func TestTokenResponseValidate(t *testing.T) {
	assert.NoError(t, (&authapi.TokenResponse{AccessToken: "a", RefreshToken: "r"}).Validate())
	assert.Error(t, (&authapi.TokenResponse{AccessToken: "a"}).Validate())
	assert.Error(t, (&authapi.TokenResponse{RefreshToken: "r"}).Validate())
	assert.Error(t, (&authapi.TokenResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: -1}).Validate())
}

func TestKindHelpers(t *testing.T) {
	network := &authapi.Error{Kind: authapi.KindNetwork, Err: context.DeadlineExceeded}
	wrapped := fmt.Errorf("refresh: %w", network)

	assert.Equal(t, authapi.KindNetwork, authapi.KindOf(wrapped))
	assert.True(t, authapi.IsTransient(wrapped))
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
	assert.True(t, errors.Is(wrapped, &authapi.Error{Kind: authapi.KindNetwork}))
	assert.False(t, errors.Is(wrapped, &authapi.Error{Kind: authapi.KindServer}))

	assert.Equal(t, authapi.KindUnknown, authapi.KindOf(errors.New("plain")))
	assert.False(t, authapi.IsTransient(&authapi.Error{Kind: authapi.KindTokenInvalid}))
	assert.True(t, authapi.IsTransient(&authapi.Error{Kind: authapi.KindRateLimited}))
}

func TestErrorString(t *testing.T) {
	err := &authapi.Error{
		Kind:    authapi.KindValidation,
		Status:  http.StatusUnprocessableEntity,
		Code:    authapi.CodeValidationFailed,
		Message: "registration rejected",
		Fields:  map[string]string{"password": "too short", "email": "invalid"},
	}
	assert.Equal(t, "validation (422 validation_failed): registration rejected [email: invalid; password: too short]", err.Error())
	assert.Equal(t, map[string]string{"password": "too short", "email": "invalid"}, authapi.FieldsOf(err))
	assert.NotEmpty(t, authapi.KindAccountLocked.UserMessage())
}
