package handler

import (
	"net/http"
	"strconv"
	"time"

	"comfycollab/internal/app/db"
	"comfycollab/internal/app/user"
	"comfycollab/internal/pkg/auth/jwt"
	"comfycollab/internal/pkg/errs"
	"comfycollab/internal/pkg/logx"
	"comfycollab/internal/pkg/resp"
)

// UserResponse is the public view of an account.
type UserResponse struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name,omitempty"`
	Email       string     `json:"email,omitempty"`
	Color       string     `json:"color"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	IsAdmin     bool       `json:"is_admin"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func newUserResponse(u db.User) UserResponse {
	out := UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName.String,
		Email:       u.Email.String,
		Color:       u.Color,
		Role:        u.Role,
		IsActive:    u.IsActive,
		IsAdmin:     u.Role == user.RoleAdmin,
		CreatedAt:   u.CreatedAt.Time,
	}
	if u.LastLoginAt.Valid {
		t := u.LastLoginAt.Time
		out.LastLoginAt = &t
	}
	return out
}

// HandleGetMe returns the account behind the bearer token. A token whose
// account was removed or disabled answers 401 so the client drops it.
func HandleGetMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		id, err := strconv.ParseInt(payload.ID, 10, 64)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		dbUser, err := deps.Users.GetUserByID(r.Context(), id)
		if err != nil {
			if db.IsNotFound(err) {
				logx.Warn("get_me: user not found", "id", payload.ID)
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			logx.Error(err, "get_me: user fetch failed", "id", payload.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if !dbUser.IsActive {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		resp.RespondSuccess(w, r, newUserResponse(dbUser))
	}
}

// HandleListUsers returns every account. Admin only.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}
		if payload.Role != user.RoleAdmin {
			resp.RespondError(w, r, errs.NewError(errs.ErrForbidden))
			return
		}

		users, err := deps.Users.ListUsers(r.Context())
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		out := make([]UserResponse, 0, len(users))
		for _, u := range users {
			out = append(out, newUserResponse(u))
		}
		resp.RespondSuccess(w, r, out)
	}
}
