package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable error codes returned to clients.
const (
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeInvalidMealDescription = "INVALID_MEAL_DESCRIPTION"
	CodeMealNotDetected        = "MEAL_NOT_DETECTED"
	CodeInferenceFailed        = "INFERENCE_FAILED"
	CodeMealNotFound           = "MEAL_NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeImportInProgress       = "IMPORT_IN_PROGRESS"
	CodeInternal               = "INTERNAL_ERROR"
)

// ErrorKind classifies ingestion failures.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindHeuristicRejection
	KindMealNotDetected
	KindInference
	KindStorage
	KindPersistence
	KindNotFound
	KindConflict
)

var (
	// ErrMealNotFound is returned when a meal does not exist or belongs to another user.
	ErrMealNotFound = errors.New("meal not found")

	// ErrNothingRecognized is returned by the inference client when the
	// service answered but listed no foods.
	ErrNothingRecognized = errors.New("no foods recognized")
)

// IngestError is a typed failure carrying a stable code and a client-safe message.
// Err holds the underlying cause and is never shown to clients for 5xx kinds.
type IngestError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *IngestError) Unwrap() error { return e.Err }

// Status maps the error kind to an HTTP status.
func (e *IngestError) Status() int {
	switch e.Kind {
	case KindValidation, KindHeuristicRejection:
		return http.StatusBadRequest
	case KindMealNotDetected:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInference:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError builds a VALIDATION_FAILED error with field detail.
func NewValidationError(message string, fields map[string]string) *IngestError {
	return &IngestError{Kind: KindValidation, Code: CodeValidationFailed, Message: message, Fields: fields}
}

// NewHeuristicRejection builds an INVALID_MEAL_DESCRIPTION error quoting the
// classifier's reason plus a usage example.
func NewHeuristicRejection(reason string) *IngestError {
	return &IngestError{
		Kind:    KindHeuristicRejection,
		Code:    CodeInvalidMealDescription,
		Message: fmt.Sprintf("%s. Describe what you ate, for example: %q", reason, MealDescriptionExample),
	}
}

// MealDescriptionExample is quoted back to clients whose description was rejected.
const MealDescriptionExample = "grilled chicken breast with rice and a side salad"

// NewMealNotDetected builds the distinct "nothing recognized" error.
func NewMealNotDetected(source MealSource) *IngestError {
	msg := "No food could be recognized. Try adding more detail about what you ate."
	if source == MealSourceImage {
		msg = "No food could be recognized in the photo. Try a clearer, well-lit photo of the plate."
	}
	return &IngestError{Kind: KindMealNotDetected, Code: CodeMealNotDetected, Message: msg, Err: ErrNothingRecognized}
}

// NewInferenceError wraps a transport or parse failure of the inference service.
func NewInferenceError(err error) *IngestError {
	return &IngestError{
		Kind:    KindInference,
		Code:    CodeInferenceFailed,
		Message: "Meal analysis is temporarily unavailable. Please try again.",
		Err:     err,
	}
}

// NewStorageError wraps an image storage failure.
func NewStorageError(err error) *IngestError {
	return &IngestError{Kind: KindStorage, Code: CodeInternal, Message: "Failed to store meal image.", Err: err}
}

// NewPersistenceError wraps a database failure.
func NewPersistenceError(err error) *IngestError {
	return &IngestError{Kind: KindPersistence, Code: CodeInternal, Message: "Failed to save meal.", Err: err}
}

// NewMealNotFound builds the MEAL_NOT_FOUND error. Meals of other users are
// reported the same way.
func NewMealNotFound() *IngestError {
	return &IngestError{Kind: KindNotFound, Code: CodeMealNotFound, Message: "Meal not found.", Err: ErrMealNotFound}
}

// NewImportInProgress is returned when a bulk import is requested while
// another one is still running.
func NewImportInProgress() *IngestError {
	return &IngestError{Kind: KindConflict, Code: CodeImportInProgress, Message: "An import is already running."}
}

// AsIngestError extracts an IngestError from err's chain.
func AsIngestError(err error) (*IngestError, bool) {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
