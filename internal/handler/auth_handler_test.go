package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

type fakeAuthSrv struct {
	login        models.LoginRequest
	loggedOut    string
	logoutUserID string
	err          error
}

func (f *fakeAuthSrv) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.login = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeAuthSrv) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "access-2"}, f.err
}

func (f *fakeAuthSrv) Logout(_ context.Context, token, userID string) error {
	f.loggedOut = token
	f.logoutUserID = userID
	return f.err
}

func (f *fakeAuthSrv) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID, Role: models.RoleInvigilator, InvigilatorID: "inv-1"}, f.err
}

func TestAuthHandlerLoginCapturesClientMetadata(t *testing.T) {
	srv := &fakeAuthSrv{}
	handler := NewAuthHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"secret"}`)
	c.Request.Header.Set("User-Agent", "handler-test")

	handler.Login(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin@example.com", srv.login.Email)
	assert.Equal(t, "handler-test", srv.login.UserAgent)
	assert.Equal(t, "access", decodeEnvelope(t, rec).Data["access_token"])
}

func TestAuthHandlerLoginRejectsMalformedJSON(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})
	c, rec := newTestContext(http.MethodPost, "/auth/login", `{"email":`)

	handler.Login(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{err: appErrors.ErrInvalidCredentials})
	c, rec := newTestContext(http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"bad"}`)

	handler.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLogoutRequiresClaims(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})
	c, rec := newTestContext(http.MethodPost, "/auth/logout", `{"refresh_token":"r"}`)

	handler.Logout(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLogoutRevokesForCaller(t *testing.T) {
	srv := &fakeAuthSrv{}
	handler := NewAuthHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/auth/logout", `{"refresh_token":"r-1"}`)
	withClaims(c, &models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin})

	handler.Logout(c)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "r-1", srv.loggedOut)
	assert.Equal(t, "user-1", srv.logoutUserID)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthSrv{})
	c, rec := newTestContext(http.MethodGet, "/auth/me", "")
	withClaims(c, &models.JWTClaims{UserID: "user-7", Role: models.RoleInvigilator})

	handler.Me(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "user-7", envelope.Data["id"])
	assert.Equal(t, "inv-1", envelope.Data["invigilator_id"])
}
