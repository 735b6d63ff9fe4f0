package httputil

// API 錯誤代碼常數, 與 domain.Kind.Code() 對應.
const (
	// 401 Unauthorized.
	ErrorCodeUnauthorized = "UNAUTHORIZED"

	// 400 Bad Request.
	ErrorCodeInvalidParameter = "INVALID_REQUEST"

	// 403 / 404 / 409 / 412.
	ErrorCodeForbidden    = "FORBIDDEN"
	ErrorCodeNotFound     = "NOT_FOUND"
	ErrorCodeConflict     = "CONFLICT"
	ErrorCodePrecondition = "PRECONDITION_FAILED"

	// 5xx.
	ErrorCodeExternal = "EXTERNAL_DEPENDENCY_FAILURE"
	ErrorCodeInternal = "INTERNAL_ERROR"
)
