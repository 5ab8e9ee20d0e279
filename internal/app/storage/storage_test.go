package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfycollab/internal/pkg/errs"
)

func TestValidateOutputSize(t *testing.T) {
	assert.Nil(t, ValidateOutputSize(1))
	assert.Nil(t, ValidateOutputSize(MaxOutputSize))

	err := ValidateOutputSize(0)
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrInvalidParams, err.Code)

	err = ValidateOutputSize(MaxOutputSize + 1)
	require.NotNil(t, err)
	assert.Equal(t, errs.ErrFileSizeTooLarge, err.Code)
	assert.Contains(t, err.Message, "100")
}

func TestValidateOutputType(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		mime     string
		ok       bool
	}{
		{"png", "ComfyUI_0001.png", "image/png", true},
		{"upper ext", "clip.MP4", "video/mp4", true},
		{"mime case", "a.webp", "IMAGE/WEBP", true},
		{"mismatch", "a.png", "image/jpeg", false},
		{"unknown ext", "a.exe", "application/octet-stream", false},
		{"no ext", "README", "text/plain", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputType(tt.fileName, tt.mime)
			if tt.ok {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, errs.ErrFileTypeInvalid, err.Code)
		})
	}
}

func TestOutputKeyOwnership(t *testing.T) {
	key := OutputKey("7", "Result.PNG")

	assert.True(t, strings.HasPrefix(key, "outputs/7/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.True(t, OwnsKey("7", key))
	assert.False(t, OwnsKey("8", key))
	assert.False(t, OwnsKey("", key))
	assert.False(t, OwnsKey("7", "outputs/7/"))
	assert.False(t, OwnsKey("7", "outputs/7/../8/x.png"))
	assert.False(t, OwnsKey("7", "outputs/70/x.png"))
	assert.NotEqual(t, key, OutputKey("7", "Result.PNG"))
}

func TestPresignIsOffline(t *testing.T) {
	svc, err := NewStorageService(context.Background(), ServiceConfig{
		S3BucketName:      "outputs-bucket",
		S3Endpoint:        "http://localhost:9000",
		S3AccessKeyID:     "access",
		S3SecretAccessKey: "secret",
	})
	require.NoError(t, err)

	raw, err := svc.PresignDownload(context.Background(), "outputs/7/a.png", time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/outputs-bucket/outputs/7/a.png", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

	raw, err = svc.PresignUpload(context.Background(), "outputs/7/b.png", "image/png", 42, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, raw, "/outputs-bucket/outputs/7/b.png")
}
