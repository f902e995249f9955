package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	. "github.com/trezcool/ahadi/apps/api/echo"
	"github.com/trezcool/ahadi/core/user"
)

func Test_userApi_register(t *testing.T) {
	e := setup(t)

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"username":         reqMsg,
				"email":            reqMsg,
				"password":         reqMsg,
				"password_confirm": reqMsg,
				"role":             reqMsg,
			}),
		},
		{
			name: "invalid role", wantCode: http.StatusBadRequest,
			body: marchallObj(t, map[string]string{
				"username": "awe", "email": "awe@test.cd",
				"password": "LolC@t123", "password_confirm": "LolC@t123", "role": "admin",
			}),
			wantData: marchallObj(t, map[string]string{"role": "role must be one of [clinician provider]"}),
		},
		{
			name: "invalid password", wantCode: http.StatusBadRequest,
			body: marchallObj(t, map[string]string{
				"username": "awe", "email": "awe@test.cd",
				"password": "lol", "password_confirm": "lol", "role": "clinician",
			}),
			wantData: marchallObj(t, map[string]string{"password": "password must contain at least 8 characters"}),
		},
		{
			name: "provider needs an institution", wantCode: http.StatusBadRequest,
			body: marchallObj(t, map[string]string{
				"username": "prov", "email": "prov@test.cd",
				"password": "LolC@t123", "password_confirm": "LolC@t123", "role": "provider",
			}),
			wantData: marchallObj(t, map[string]string{"institution": reqMsg}),
		},
		{
			name: "clinician registered", wantCode: http.StatusCreated,
			body: marchallObj(t, map[string]string{
				"username": "awe", "email": "awe@test.cd",
				"password": "LolC@t123", "password_confirm": "LolC@t123", "role": "clinician",
				"first_name": "Awe", "last_name": "Some",
			}),
		},
		{
			name: "duplicate username", wantCode: http.StatusBadRequest,
			body: marchallObj(t, map[string]string{
				"username": "awe", "email": "other@test.cd",
				"password": "LolC@t123", "password_confirm": "LolC@t123", "role": "clinician",
			}),
			wantData: marchallObj(t, map[string]string{"username": "a user with this username already exists"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/register"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			e.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusCreated {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var usr user.User
				if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if usr.Active() {
					t.Error("failed! new accounts must await activation")
				}
				if !usr.IsClinician {
					t.Error("failed! clinician flag not set")
				}

				// the clinician profile exists already
				if _, err := e.usrRepo.GetClinician(context.Background(), user.ProfileFilter{UserID: usr.ID}); err != nil {
					t.Errorf("GetClinician(): %v", err)
				}

				// an activation mail went out
				msgs := e.mail.Sent()
				if len(msgs) != 1 {
					t.Fatalf("failed! len(Sent()) = %d; want 1", len(msgs))
				}
				if msgs[0].To[0].Address != "awe@test.cd" {
					t.Errorf("failed! To = %v", msgs[0].To[0])
				}
				if !strings.Contains(msgs[0].TextContent, "/account/activate/") {
					t.Errorf("failed! no activation link in %q", msgs[0].TextContent)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_activate(t *testing.T) {
	e := setup(t)

	usr := e.createUser(t, "awe", user.RoleClinician, false)
	validUID := user.EncodeUID(usr)
	validToken, err := user.MakeToken(e.conf, usr)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"uid": "this field is required", "token": "this field is required"}),
		},
		{
			name: "invalid uid", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, ActivationRequest{UID: "?!?", Token: validToken}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, ActivationRequest{UID: validUID, Token: "HE4TS-sigsig-sig"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "valid token", wantCode: http.StatusOK,
			body:     marchallObj(t, ActivationRequest{UID: validUID, Token: validToken}),
			wantData: marchallObj(t, SuccessResponse{Success: "Account activated. You can now log in."}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/activate"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			e.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				refreshed, err := e.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser(): %v", err)
				}
				if !refreshed.Active() {
					t.Error("failed! account still inactive")
				}
			}
		})
	}
}

func Test_userApi_login(t *testing.T) {
	e := setup(t)

	usr, _ := e.createClinician(t, "awe")
	naughty := e.createUser(t, "ndog", user.RoleClinician, false)

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, LoginRequest{Username: "lol", Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, LoginRequest{Username: usr.Username, Password: "nope"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive account", wantCode: http.StatusForbidden,
			body:     marchallObj(t, LoginRequest{Username: naughty.Username, Password: "LolC@t123"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "login by username", wantCode: http.StatusOK,
			body: marchallObj(t, LoginRequest{Username: "  AWE ", Password: "LolC@t123"}),
		},
		{
			name: "login by email", wantCode: http.StatusOK,
			body: marchallObj(t, LoginRequest{Username: usr.Email, Password: "LolC@t123"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			e.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	e := setup(t)

	usr, _ := e.createClinician(t, "awe")
	naughty := e.createUser(t, "ndog", user.RoleClinician, false)

	now := time.Now()
	staleClaims := GetUserClaims(usr, now.Add(-2*e.conf.Server.JWTRefreshExpirationDelta).Unix())
	staleToken, err := GenerateToken(staleClaims)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "inactive user not allowed", token: getToken(t, naughty),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "refresh period expired", token: staleToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "token refreshed", token: getToken(t, usr), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			e.app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal(): %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_me(t *testing.T) {
	e := setup(t)

	clUsr, cl := e.createClinician(t, "awe")
	prUsr, pr := e.createProvider(t, "prov")

	t.Run("auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/users/me")
		e.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("clinician profile", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", getToken(t, clUsr))
		e.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, ProfileResponse{User: clUsr, Clinician: &cl}),
		}, rec)
	})

	t.Run("provider profile", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", getToken(t, prUsr))
		e.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, ProfileResponse{User: prUsr, Provider: &pr}),
		}, rec)
	})

	t.Run("update profile", func(t *testing.T) {
		body := marchallObj(t, user.UpdateProfile{FirstName: "Awe", LastName: "Yann"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/me", getToken(t, clUsr), body)
		e.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		refreshed, err := e.usrRepo.GetClinician(context.Background(), user.ProfileFilter{ID: cl.ID})
		if err != nil {
			t.Fatalf("GetClinician(): %v", err)
		}
		if refreshed.FirstName != "Awe" || refreshed.LastName != "Yann" {
			t.Errorf("failed! profile = %+v", refreshed)
		}
	})
}

func Test_userApi_resetPassword(t *testing.T) {
	e := setup(t)

	usr, _ := e.createClinician(t, "awe")
	successData := marchallObj(t, SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	type extraTest struct {
		emailSent bool
	}
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required"}),
		},
		{
			name: "invalid email", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name: "unknown email", wantCode: http.StatusOK,
			body:     marchallObj(t, PasswordResetRequest{Email: "lol@test.cd"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", wantCode: http.StatusOK,
			body:     marchallObj(t, PasswordResetRequest{Email: usr.Email}),
			wantData: successData, extra: extraTest{emailSent: true},
		},
	}
	sentBefore := 0
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			e.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if extra, ok := tt.extra.(extraTest); ok {
				msgs := e.mail.Sent()
				if extra.emailSent {
					if len(msgs) != sentBefore+1 {
						t.Fatalf("failed! len(Sent()) = %d; want %d", len(msgs), sentBefore+1)
					}
					msg := msgs[len(msgs)-1]
					if msg.To[0].Address != usr.Email {
						t.Errorf("failed! To = %v; want %v", msg.To[0].Address, usr.Email)
					}
					if !strings.Contains(msg.TextContent, "/account/password-reset/") {
						t.Errorf("failed! no reset link in %q", msg.TextContent)
					}
					sentBefore = len(msgs)
				} else if len(msgs) != sentBefore {
					t.Errorf("failed! len(Sent()) = %d; want %d", len(msgs), sentBefore)
				}
			}
		})
	}
}

func Test_userApi_confirmPasswordReset(t *testing.T) {
	e := setup(t)

	usr, _ := e.createClinician(t, "awe")
	validUID := user.EncodeUID(usr)
	validToken, err := user.MakeToken(e.conf, usr)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}

	// generate an expired token
	dayLate := e.conf.PasswordResetTimeoutDelta + (24 * time.Hour)
	user.NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken, err := user.MakeToken(e.conf, usr)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}
	user.NowFunc = time.Now // reset

	reqMsg := "this field is required"
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"token": reqMsg, "uid": reqMsg,
				"password": reqMsg, "password_confirm": reqMsg,
			}),
		},
		{
			name: "password too short", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "lol", PasswordConfirm: "lol"}),
			wantData: marchallObj(t, map[string]string{"password": "password must contain at least 8 characters"}),
		},
		{
			name: "password all numeric", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "12345678", PasswordConfirm: "12345678"}),
			wantData: marchallObj(t, map[string]string{"password": "password cannot be entirely numeric"}),
		},
		{
			name: "confirmation mismatch", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "LolC@t456", PasswordConfirm: "lol"}),
			wantData: marchallObj(t, map[string]string{"password_confirm": "password_confirm must be equal to Password"}),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig-sig", UID: validUID, Password: "LolC@t456", PasswordConfirm: "LolC@t456"}),
			wantData: marchallObj(t, httpErr{Error: "invalid token"}),
		},
		{
			name: "expired token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: expiredToken, UID: validUID, Password: "LolC@t456", PasswordConfirm: "LolC@t456"}),
			wantData: marchallObj(t, httpErr{Error: "token expired"}),
		},
		{
			name: "valid token", wantCode: http.StatusOK,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: "LolC@t456", PasswordConfirm: "LolC@t456"}),
			wantData: marchallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset-confirm"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			e.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				refreshed, err := e.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser(): %v", err)
				}
				if err := refreshed.CheckPassword("LolC@t456"); err != nil {
					t.Error("failed! new password not set")
				}
			}
		})
	}
}
