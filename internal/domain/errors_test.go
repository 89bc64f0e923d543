package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestIngestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        *IngestError
		wantCode   string
		wantStatus int
	}{
		{"validation", NewValidationError("bad input", map[string]string{"image": "required"}), CodeValidationFailed, http.StatusBadRequest},
		{"heuristic", NewHeuristicRejection("Description is too short"), CodeInvalidMealDescription, http.StatusBadRequest},
		{"not detected", NewMealNotDetected(MealSourceText), CodeMealNotDetected, http.StatusUnprocessableEntity},
		{"inference", NewInferenceError(errors.New("dial tcp: timeout")), CodeInferenceFailed, http.StatusBadGateway},
		{"storage", NewStorageError(errors.New("bucket missing")), CodeInternal, http.StatusInternalServerError},
		{"persistence", NewPersistenceError(errors.New("disk full")), CodeInternal, http.StatusInternalServerError},
		{"not found", &IngestError{Kind: KindNotFound, Code: CodeMealNotFound, Err: ErrMealNotFound}, CodeMealNotFound, http.StatusNotFound},
		{"import running", NewImportInProgress(), CodeImportInProgress, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if got := tt.err.Status(); got != tt.wantStatus {
				t.Errorf("Status() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestHeuristicRejectionQuotesReasonAndExample(t *testing.T) {
	err := NewHeuristicRejection("Description looks like random characters")

	if !strings.HasPrefix(err.Message, "Description looks like random characters.") {
		t.Errorf("message %q does not start with the reason", err.Message)
	}
	if !strings.Contains(err.Message, MealDescriptionExample) {
		t.Errorf("message %q does not include the usage example", err.Message)
	}
}

func TestMealNotDetectedMessageDependsOnSource(t *testing.T) {
	image := NewMealNotDetected(MealSourceImage)
	text := NewMealNotDetected(MealSourceText)

	if image.Message == text.Message {
		t.Errorf("image and text messages should differ, both %q", image.Message)
	}
	if !strings.Contains(image.Message, "photo") {
		t.Errorf("image message %q should mention the photo", image.Message)
	}
	if !errors.Is(image, ErrNothingRecognized) {
		t.Error("expected MEAL_NOT_DETECTED to wrap ErrNothingRecognized")
	}
}

func TestAsIngestError(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := fmt.Errorf("analyze meal: %w", NewInferenceError(cause))

	ie, ok := AsIngestError(wrapped)
	if !ok {
		t.Fatal("expected IngestError in chain")
	}
	if ie.Kind != KindInference {
		t.Errorf("Kind = %v, want KindInference", ie.Kind)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected cause to stay reachable through Unwrap")
	}

	if _, ok := AsIngestError(cause); ok {
		t.Error("plain error should not convert to IngestError")
	}
}
