package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrProviderNotConfigured = &AppError{Code: "PROV_001", Message: "no AI provider configured"}
	ErrProviderUnavailable   = &AppError{Code: "PROV_002", Message: "AI provider unavailable"}
	ErrAllProvidersFailed    = &AppError{Code: "PROV_003", Message: "all providers failed"}

	ErrDocumentNotFound  = &AppError{Code: "DOC_001", Message: "document not found"}
	ErrDocumentEmpty     = &AppError{Code: "DOC_002", Message: "document has no content"}
	ErrDocumentTooLarge  = &AppError{Code: "DOC_003", Message: "document exceeds size limit"}
	ErrUnsupportedFormat = &AppError{Code: "DOC_004", Message: "unsupported document format"}

	ErrBatchNotFound = &AppError{Code: "BATCH_001", Message: "batch job not found"}

	ErrFormNotFound = &AppError{Code: "FORM_001", Message: "form template not found"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden    = &AppError{Code: "AUTH_002", Message: "forbidden"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
