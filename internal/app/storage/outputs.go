package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"comfycollab/internal/pkg/errs"
	"comfycollab/internal/pkg/randx"
)

const (
	// MaxOutputSizeMB is the largest generated output accepted for upload.
	MaxOutputSizeMB = 100

	// MaxOutputSize is MaxOutputSizeMB in bytes.
	MaxOutputSize = MaxOutputSizeMB * 1024 * 1024

	// PresignedURLDuration is how long an upload or download URL stays valid.
	PresignedURLDuration = 5 * time.Minute

	outputPrefix = "outputs"
)

// ExtToMIME lists the output formats a workflow can produce.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// ValidateOutputSize checks the declared upload size.
func ValidateOutputSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > MaxOutputSize {
		return errs.NewError(errs.ErrFileSizeTooLarge, MaxOutputSizeMB)
	}

	return nil
}

// ValidateOutputType checks that the extension is known and agrees with mimeType.
func ValidateOutputType(fileName string, mimeType string) *errs.CustomError {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	expected, ok := ExtToMIME[ext]
	if !ok || expected != strings.ToLower(mimeType) {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	return nil
}

// OutputKey returns a fresh object key under the owner's prefix:
// outputs/{userID}/{random}{ext}.
func OutputKey(userID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("%s/%s/%s%s", outputPrefix, userID, randx.ObjectID(), ext)
}

// OwnsKey reports whether key lies under userID's output prefix.
func OwnsKey(userID, key string) bool {
	prefix := fmt.Sprintf("%s/%s/", outputPrefix, userID)
	rest, ok := strings.CutPrefix(key, prefix)
	return ok && userID != "" && rest != "" && !strings.Contains(rest, "/") && !strings.Contains(rest, "..")
}
