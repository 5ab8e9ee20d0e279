/*
Package req binds request bodies into handler input structs, translating
decoding failures into errs codes.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"comfycollab/internal/pkg/errs"
)

const (
	// MaxFormMemory is the in-memory budget for multipart form fields.
	MaxFormMemory int64 = 1 << 20

	// MaxBodySize caps every bound request body.
	MaxBodySize int64 = 1 << 20
)

// IsJSON reports whether the request declares a JSON body.
func IsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// BindJSON decodes the request body into dst, rejecting unknown fields and trailing data.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	if !IsJSON(r) {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// BindForm parses a multipart or URL-encoded form so r.FormValue can be used.
func BindForm(w http.ResponseWriter, r *http.Request) *errs.CustomError {
	return BindFormLimit(w, r, MaxBodySize)
}

// BindFormLimit is BindForm with a caller-chosen body limit, for file uploads.
func BindFormLimit(w http.ResponseWriter, r *http.Request, limit int64) *errs.CustomError {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(MaxFormMemory)
	} else {
		err = r.ParseForm()
	}

	if err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrFormParseFailed)
	}

	return nil
}
