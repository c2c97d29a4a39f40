package executor

import (
	"github.com/jmgilman/go/errors"
)

// ErrorPayload is the structured error handed to the tool-call layer.
type ErrorPayload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToErrorPayload converts any error. Errors without a code report UNKNOWN.
func ToErrorPayload(err error) *ErrorPayload {
	if err == nil {
		return nil
	}

	payload := &ErrorPayload{
		Code:    string(errors.GetCode(err)),
		Message: err.Error(),
	}

	var pe errors.PlatformError
	if errors.As(err, &pe) {
		payload.Message = pe.Message()
		if details := pe.Context(); len(details) > 0 {
			payload.Details = details
		}
	}
	return payload
}
