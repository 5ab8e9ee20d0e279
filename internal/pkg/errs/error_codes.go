/*
Package errs provides the application error type and its error codes.

Codes are shared by the REST handlers and the websocket hub so that a client
sees the same number for the same failure on either surface.
*/
package errs

// 1xxx: General request handling errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing data after the JSON document.
	ErrExtraContentInBody = 1004

	// ErrFormParseFailed indicates failure to parse multipart or URL-encoded form data.
	ErrFormParseFailed = 1005

	// ErrRequestEntityTooLarge indicates that the request body exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the caller exceeded its request rate.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Canvas session errors
const (
	// ErrCanvasIDInvalid indicates a malformed canvas identifier.
	ErrCanvasIDInvalid = 2101

	// ErrCanvasIsFull indicates that the canvas reached its client capacity.
	ErrCanvasIsFull = 2102

	// ErrHubUnavailable indicates the hub is shutting down or overloaded.
	ErrHubUnavailable = 2103
)

// 3xxx: Identity and session errors
const (
	// ErrUnauthorized indicates a missing or invalid bearer token.
	ErrUnauthorized = 3001

	// ErrInvalidCredentials indicates a wrong username or password.
	ErrInvalidCredentials = 3002

	// ErrUserInactive indicates that the account has been disabled.
	ErrUserInactive = 3003

	// ErrUserNotFound indicates that the account no longer exists.
	ErrUserNotFound = 3004

	// ErrSessionKicked indicates that a newer connection of the same user replaced this one.
	ErrSessionKicked = 3005

	// ErrHandshakeRequired indicates that the first websocket frame was not a valid auth frame.
	ErrHandshakeRequired = 3006

	// ErrForbidden indicates that the caller's role does not allow the operation.
	ErrForbidden = 3007
)

// 4xxx: Output file storage errors
const (
	// ErrFileSizeTooLarge indicates that the declared file size exceeds the limit.
	ErrFileSizeTooLarge = 4001

	// ErrFileTypeInvalid indicates an unsupported extension or MIME type.
	ErrFileTypeInvalid = 4002

	// ErrFileKeyInvalid indicates an object key outside the caller's scope.
	ErrFileKeyInvalid = 4003

	// ErrFileStorageFailed indicates that the object store rejected the operation.
	ErrFileStorageFailed = 4004

	// ErrFileNotFound indicates that no object exists under the key.
	ErrFileNotFound = 4005

	// ErrStorageDisabled indicates that the server runs without an object store.
	ErrStorageDisabled = 4006
)

// 5xxx: Internal system errors
const (
	// ErrUnknown represents an unclassified server error.
	ErrUnknown = 5000
)
