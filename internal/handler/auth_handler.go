/*
Package handler provides the HTTP handlers of the collaboration server:
token login, the current user, output file presigning and the websocket
entry point of the presence hub.
*/
package handler

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"comfycollab/internal/app/db"
	"comfycollab/internal/pkg/auth/jwt"
	"comfycollab/internal/pkg/errs"
	"comfycollab/internal/pkg/logx"
	"comfycollab/internal/pkg/req"
	"comfycollab/internal/pkg/resp"
)

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the body of a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// bindLogin accepts the OAuth2 password form as well as a JSON body.
func bindLogin(w http.ResponseWriter, r *http.Request) (LoginInput, *errs.CustomError) {
	var input LoginInput

	if req.IsJSON(r) {
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			return input, customErr
		}
	} else {
		if customErr := req.BindForm(w, r); customErr != nil {
			return input, customErr
		}
		input.Username = r.FormValue("username")
		input.Password = r.FormValue("password")
	}

	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" || input.Password == "" {
		return input, errs.NewError(errs.ErrInvalidParams)
	}

	return input, nil
}

// HandleLogin verifies user credentials and issues a JWT carrying the
// presence identity.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, customErr := bindLogin(w, r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		dbUser, err := deps.Users.GetUserByUsername(r.Context(), input.Username)
		if err != nil {
			if !db.IsNotFound(err) {
				logx.Error(err, "login: user fetch failed", "username", input.Username)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}
			logx.Warn("login: unknown user", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(dbUser.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("login: password mismatch", "username", input.Username)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if !dbUser.IsActive {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserInactive))
			return
		}

		if err := deps.Users.UpdateLastLogin(r.Context(), dbUser.ID); err != nil {
			logx.Error(err, "login: failed to update last_login_at", "user_id", dbUser.ID)
		}

		token, err := jwt.GenerateToken(jwt.NewPayload(dbUser.Identity()), deps.Config.JWTSecret, jwt.AccessTokenExpiration)
		if err != nil {
			logx.Error(err, "login: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("User logged in", "user_id", dbUser.ID)
		resp.RespondSuccess(w, r, TokenResponse{AccessToken: token, TokenType: "bearer"})
	}
}
