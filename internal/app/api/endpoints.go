package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"comfycollab/internal/app/protocol"
	"comfycollab/internal/app/user"
)

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// User is an account as the backend reports it.
type User struct {
	ID          protocol.ID `json:"id"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name,omitempty"`
	Email       string      `json:"email,omitempty"`
	Color       string      `json:"color,omitempty"`
	Role        string      `json:"role,omitempty"`
	IsActive    bool        `json:"is_active"`
	IsAdmin     bool        `json:"is_admin"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Identity returns the presence identity of u.
func (u User) Identity() user.Identity {
	role := u.Role
	if role == "" {
		role = user.RoleUser
		if u.IsAdmin {
			role = user.RoleAdmin
		}
	}
	return user.Identity{
		ID:          string(u.ID),
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Color:       u.Color,
		Role:        role,
	}
}

// Workflow is a saved canvas document. WorkflowJSON is opaque.
type Workflow struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	WorkflowJSON json.RawMessage `json:"workflow_json"`
	CreatorID    int64           `json:"creator_id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

// WorkflowInput creates or updates a workflow. Nil fields are left unchanged
// on update.
type WorkflowInput struct {
	Name         *string         `json:"name,omitempty"`
	Description  *string         `json:"description,omitempty"`
	WorkflowJSON json.RawMessage `json:"workflow_json,omitempty"`
}

// Output is a file produced by running a workflow.
type Output struct {
	ID         int64          `json:"id"`
	Filename   string         `json:"filename"`
	FilePath   string         `json:"file_path"`
	FileType   string         `json:"file_type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	WorkflowID int64          `json:"workflow_id"`
	CreatorID  int64          `json:"creator_id"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Settings are the application-wide settings.
type Settings struct {
	ComfyUIAPIURL               string `json:"comfyui_api_url"`
	EnableRealTimeCollaboration bool   `json:"enable_real_time_collaboration"`
	AutoSaveInterval            int    `json:"auto_save_interval"`
	MaxUploadSizeMB             int    `json:"max_upload_size_mb"`
	DefaultTheme                string `json:"default_theme"`
}

// PresignUploadInput asks for an output upload URL.
type PresignUploadInput struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// PresignedUpload is where and under which key to PUT an output file.
type PresignedUpload struct {
	PresignedURL string `json:"presignedUrl"`
	FileKey      string `json:"fileKey"`
	FileName     string `json:"fileName"`
}

// Login exchanges credentials for a token. It does not set the token.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	var tok Token
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/api/auth/token",
		form:      url.Values{"username": {username}, "password": {password}},
		anonymous: true,
	}, &tok)
	return tok, err
}

// Me returns the account behind the current token.
func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/users/me"}, &u)
	return u, err
}

// ListUsers returns every account. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/users"}, &users)
	return users, err
}

// ListWorkflows returns the workflows visible to the current user.
func (c *Client) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	var wfs []Workflow
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/workflows"}, &wfs)
	return wfs, err
}

// GetWorkflow returns one workflow.
func (c *Client) GetWorkflow(ctx context.Context, id int64) (Workflow, error) {
	var wf Workflow
	err := c.do(ctx, request{method: http.MethodGet, path: workflowPath(id)}, &wf)
	return wf, err
}

// CreateWorkflow stores a new workflow.
func (c *Client) CreateWorkflow(ctx context.Context, in WorkflowInput) (Workflow, error) {
	var wf Workflow
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/workflows", body: in}, &wf)
	return wf, err
}

// UpdateWorkflow patches a workflow.
func (c *Client) UpdateWorkflow(ctx context.Context, id int64, in WorkflowInput) (Workflow, error) {
	var wf Workflow
	err := c.do(ctx, request{method: http.MethodPut, path: workflowPath(id), body: in}, &wf)
	return wf, err
}

// DeleteWorkflow removes a workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: workflowPath(id)}, nil)
}

func workflowPath(id int64) string {
	return "/api/workflows/" + strconv.FormatInt(id, 10)
}

// ListOutputs returns outputs, optionally only those of one workflow.
func (c *Client) ListOutputs(ctx context.Context, workflowID int64) ([]Output, error) {
	var query url.Values
	if workflowID > 0 {
		query = url.Values{"workflow_id": {strconv.FormatInt(workflowID, 10)}}
	}
	var outs []Output
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/outputs", query: query}, &outs)
	return outs, err
}

// GetOutput returns one output.
func (c *Client) GetOutput(ctx context.Context, id int64) (Output, error) {
	var out Output
	err := c.do(ctx, request{method: http.MethodGet, path: outputPath(id)}, &out)
	return out, err
}

// DeleteOutput removes an output.
func (c *Client) DeleteOutput(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: outputPath(id)}, nil)
}

func outputPath(id int64) string {
	return "/api/outputs/" + strconv.FormatInt(id, 10)
}

// PresignOutputUpload asks for a URL to PUT an output file to.
func (c *Client) PresignOutputUpload(ctx context.Context, in PresignUploadInput) (PresignedUpload, error) {
	var p PresignedUpload
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/outputs/presign-upload", body: in}, &p)
	return p, err
}

// PresignOutputDownload returns a short-lived download URL for key.
func (c *Client) PresignOutputDownload(ctx context.Context, key string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/outputs/presign-download",
		query:  url.Values{"k": {key}},
	}, &out)
	return out.URL, err
}

// GetSettings returns the application settings.
func (c *Client) GetSettings(ctx context.Context) (Settings, error) {
	var s Settings
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/settings"}, &s)
	return s, err
}

// UpdateSettings replaces the application settings. Admin only.
func (c *Client) UpdateSettings(ctx context.Context, s Settings) (Settings, error) {
	var out Settings
	err := c.do(ctx, request{method: http.MethodPut, path: "/api/settings", body: s}, &out)
	return out, err
}

// SystemStats returns the render backend statistics as an opaque document.
func (c *Client) SystemStats(ctx context.Context) (json.RawMessage, error) {
	var stats json.RawMessage
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/comfyui/system_stats"}, &stats)
	return stats, err
}
