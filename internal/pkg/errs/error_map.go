package errs

import "net/http"

// errorMap holds the template for every known code: client message and HTTP status.
// A zero Status means 200 with the code carried in the body.
var errorMap = map[int]CustomError{
	// 1xxx
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Malformed JSON body.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrFormParseFailed:       {Code: ErrFormParseFailed, Message: "Failed to process form data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx
	ErrCanvasIDInvalid: {Code: ErrCanvasIDInvalid, Message: "Invalid canvas identifier.", Status: http.StatusBadRequest},
	ErrCanvasIsFull:    {Code: ErrCanvasIsFull, Message: "This canvas has reached its collaborator limit.", Status: http.StatusConflict},
	ErrHubUnavailable:  {Code: ErrHubUnavailable, Message: "Realtime service unavailable.", Status: http.StatusServiceUnavailable},

	// 3xxx
	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect username or password.", Status: http.StatusUnauthorized},
	ErrUserInactive:       {Code: ErrUserInactive, Message: "This account is disabled.", Status: http.StatusForbidden},
	ErrUserNotFound:       {Code: ErrUserNotFound, Message: "Account not found.", Status: http.StatusUnauthorized},
	ErrSessionKicked:      {Code: ErrSessionKicked, Message: "You opened this canvas somewhere else."},
	ErrHandshakeRequired:  {Code: ErrHandshakeRequired, Message: "Authentication handshake required."},
	ErrForbidden:          {Code: ErrForbidden, Message: "You are not allowed to do that.", Status: http.StatusForbidden},

	// 4xxx
	ErrFileSizeTooLarge:  {Code: ErrFileSizeTooLarge, Message: "File is too large (max %d MB).", Status: http.StatusBadRequest},
	ErrFileTypeInvalid:   {Code: ErrFileTypeInvalid, Message: "Unsupported file type.", Status: http.StatusBadRequest},
	ErrFileKeyInvalid:    {Code: ErrFileKeyInvalid, Message: "Invalid file reference.", Status: http.StatusForbidden},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File storage failed. Please try again.", Status: http.StatusBadGateway},
	ErrFileNotFound:      {Code: ErrFileNotFound, Message: "File not found.", Status: http.StatusNotFound},
	ErrStorageDisabled:   {Code: ErrStorageDisabled, Message: "File storage is not configured.", Status: http.StatusServiceUnavailable},

	// 5xxx
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
