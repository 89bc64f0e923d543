package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/timmy/nutrilens/internal/api/middleware"
	"github.com/timmy/nutrilens/internal/domain"
)

// APIError is the body of every failed request.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorEnvelope wraps APIError as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes err as an error envelope. Typed ingestion errors keep
// their code and client message; anything else becomes INTERNAL_ERROR and
// the cause is only logged.
func RespondError(c *gin.Context, err error) {
	ie, ok := domain.AsIngestError(err)
	if !ok {
		ie = &domain.IngestError{Code: domain.CodeInternal, Message: "Internal server error.", Err: err}
	}
	status := ie.Status()
	if status >= http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{Code: ie.Code, Message: ie.Message, Details: ie.Fields},
	})
}

// RespondBindError maps a gin binding failure to VALIDATION_FAILED with one
// detail per offending field.
func RespondBindError(c *gin.Context, err error) {
	RespondError(c, bindError(err))
}

func bindError(err error) *domain.IngestError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		names := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
			names = append(names, fe.Field())
		}
		return domain.NewValidationError("Invalid request: check "+strings.Join(names, ", ")+".", fields)
	}
	return domain.NewValidationError("Malformed request body.", map[string]string{"body": "invalid"})
}
