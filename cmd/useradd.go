package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"comfycollab/internal/app/db"
	"comfycollab/internal/app/user"
	"comfycollab/internal/configs"
	"comfycollab/internal/pkg/logx"
	"comfycollab/internal/pkg/randx"
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

var useraddCmd = &cobra.Command{
	Use:   "useradd",
	Short: "Create an account",
	Long: `Create an account in the users table. The password is read from
--password or COMFYCOLLAB_PASSWORD.`,
	RunE: runUseradd,
}

func init() {
	useraddCmd.Flags().String("username", "", "Login name (a-z, 0-9, _)")
	useraddCmd.Flags().String("password", "", "Password (6-72 bytes)")
	useraddCmd.Flags().String("display-name", "", "Name shown next to the cursor")
	useraddCmd.Flags().String("email", "", "Contact address")
	useraddCmd.Flags().String("color", user.DefaultColor, "Cursor color (#rrggbb)")
	useraddCmd.Flags().String("role", user.RoleUser, "Role: user, moderator or admin")
	_ = useraddCmd.MarkFlagRequired("username")
}

// newUserParams validates the flags and hashes the password.
func newUserParams(username, password, displayName, email, color, role string) (db.CreateUserParams, error) {
	if !usernameRegex.MatchString(username) {
		return db.CreateUserParams{}, fmt.Errorf("invalid username %q", username)
	}
	if n := utf8.RuneCountInString(password); n < 6 || len(password) > 72 {
		return db.CreateUserParams{}, fmt.Errorf("password must be 6 to 72 bytes")
	}
	if !randx.IsValidHexColor(color) {
		return db.CreateUserParams{}, fmt.Errorf("invalid color %q", color)
	}
	switch role {
	case user.RoleUser, user.RoleModerator, user.RoleAdmin:
	default:
		return db.CreateUserParams{}, fmt.Errorf("invalid role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return db.CreateUserParams{}, err
	}

	return db.CreateUserParams{
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  pgtype.Text{String: displayName, Valid: displayName != ""},
		Email:        pgtype.Text{String: email, Valid: email != ""},
		Color:        color,
		Role:         role,
	}, nil
}

func runUseradd(cmd *cobra.Command, args []string) error {
	initLogger(cmd, true)

	cfg, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	username, _ := cmd.Flags().GetString("username")
	displayName, _ := cmd.Flags().GetString("display-name")
	email, _ := cmd.Flags().GetString("email")
	color, _ := cmd.Flags().GetString("color")
	role, _ := cmd.Flags().GetString("role")

	params, err := newUserParams(username, flagOrEnv(cmd, "password", "COMFYCOLLAB_PASSWORD"), displayName, email, color, role)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	created, err := db.New(pool).CreateUser(ctx, params)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("username %q already exists", username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	logx.Info("User created", "user_id", created.ID, "username", created.Username, "role", created.Role)
	return nil
}
