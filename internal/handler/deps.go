package handler

import (
	"context"

	"comfycollab/internal/app/db"
	"comfycollab/internal/app/hub"
	"comfycollab/internal/app/storage"
	"comfycollab/internal/configs"
)

// UserStore is the part of *db.Queries the handlers use.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (db.User, error)
	GetUserByID(ctx context.Context, id int64) (db.User, error)
	ListUsers(ctx context.Context) ([]db.User, error)
	UpdateLastLogin(ctx context.Context, id int64) error
}

type AppDeps struct {
	Hub    *hub.Hub
	Config *configs.AppConfig
	Users  UserStore

	// StorageService is nil when S3 is not configured.
	StorageService storage.StorageService
}
