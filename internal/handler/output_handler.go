package handler

import (
	"errors"
	"net/http"
	"strconv"

	"comfycollab/internal/app/storage"
	"comfycollab/internal/pkg/auth/jwt"
	"comfycollab/internal/pkg/errs"
	"comfycollab/internal/pkg/logx"
	"comfycollab/internal/pkg/req"
	"comfycollab/internal/pkg/resp"
)

// PresignUploadInput defines the JSON input structure for generating upload URL.
type PresignUploadInput struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// requireStorage answers ErrStorageDisabled when no object store is configured.
func requireStorage(deps *AppDeps, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.StorageService == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrStorageDisabled))
			return
		}
		next(w, r)
	}
}

// ownedKey reads the k query parameter and checks it belongs to the caller.
func ownedKey(r *http.Request) (string, *errs.CustomError) {
	payload := jwt.GetPayloadFromContext(r)
	if payload == nil {
		return "", errs.NewError(errs.ErrUnauthorized)
	}

	key := r.URL.Query().Get("k")
	if key == "" {
		return "", errs.NewError(errs.ErrInvalidParams)
	}

	if !storage.OwnsKey(payload.ID, key) {
		return "", errs.NewError(errs.ErrFileKeyInvalid)
	}

	return key, nil
}

// HandlePresignUploadURL returns a time-limited URL to PUT an output file to,
// under the caller's own key prefix.
func HandlePresignUploadURL(deps *AppDeps) http.HandlerFunc {
	return requireStorage(deps, func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PresignUploadInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := storage.ValidateOutputSize(input.FileSize); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		if err := storage.ValidateOutputType(input.FileName, input.MimeType); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		fileKey := storage.OutputKey(payload.ID, input.FileName)

		url, err := deps.StorageService.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.FileSize,
			storage.PresignedURLDuration,
		)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.FileName,
		})
	})
}

// HandlePresignDownloadURL returns a time-limited download URL for one of the
// caller's outputs.
func HandlePresignDownloadURL(deps *AppDeps) http.HandlerFunc {
	return requireStorage(deps, func(w http.ResponseWriter, r *http.Request) {
		fileKey, customErr := ownedKey(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		url, err := deps.StorageService.PresignDownload(r.Context(), fileKey, storage.PresignedURLDuration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]string{"url": url})
	})
}

// HandleUploadOutput stores a multipart "file" field through the server, for
// clients that cannot reach the object store directly.
func HandleUploadOutput(deps *AppDeps) http.HandlerFunc {
	return requireStorage(deps, func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if customErr := req.BindFormLimit(w, r, storage.MaxOutputSize+req.MaxFormMemory); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		defer file.Close()

		mimeType := header.Header.Get("Content-Type")
		if customErr := storage.ValidateOutputSize(header.Size); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if customErr := storage.ValidateOutputType(header.Filename, mimeType); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey := storage.OutputKey(payload.ID, header.Filename)
		if err := deps.StorageService.Upload(r.Context(), fileKey, mimeType, file); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		logx.Info("Output uploaded", "user_id", payload.ID, "key", fileKey, "size", header.Size)
		resp.RespondSuccess(w, r, map[string]any{
			"fileKey":  fileKey,
			"fileName": header.Filename,
		})
	})
}

// HandleOutputMetadata reports the stored content type and size of an output.
func HandleOutputMetadata(deps *AppDeps) http.HandlerFunc {
	return requireStorage(deps, func(w http.ResponseWriter, r *http.Request) {
		fileKey, customErr := ownedKey(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		meta, err := deps.StorageService.GetObjectMetadata(r.Context(), fileKey)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrFileNotFound))
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		size, _ := strconv.ParseInt(meta["Content-Length"], 10, 64)
		resp.RespondSuccess(w, r, map[string]any{
			"fileKey":  fileKey,
			"mimeType": meta["Content-Type"],
			"fileSize": size,
		})
	})
}

// HandleDeleteOutput removes one of the caller's outputs from the store.
func HandleDeleteOutput(deps *AppDeps) http.HandlerFunc {
	return requireStorage(deps, func(w http.ResponseWriter, r *http.Request) {
		fileKey, customErr := ownedKey(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.StorageService.Delete(r.Context(), fileKey); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
