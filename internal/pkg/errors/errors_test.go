package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := New("TOKEN_REQUIRED", "security token is required", http.StatusBadRequest)
	if err.Error() != "TOKEN_REQUIRED: security token is required" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", err.HTTPStatus)
	}
}

func TestWrapPreservesChain(t *testing.T) {
	wrapped := Wrap(ErrNotFound, "NOTIFICATION_NOT_FOUND", "notification missing", http.StatusNotFound)
	if !stderrors.Is(wrapped, ErrNotFound) {
		t.Fatal("wrapped error must match sentinel via errors.Is")
	}

	outer := fmt.Errorf("handler: %w", wrapped)
	appErr, ok := IsAppError(outer)
	if !ok {
		t.Fatal("IsAppError must find AppError through wrapping")
	}
	if appErr.Code != "NOTIFICATION_NOT_FOUND" {
		t.Fatalf("unexpected code: %q", appErr.Code)
	}
}

func TestIsAppErrorOnPlainError(t *testing.T) {
	if _, ok := IsAppError(stderrors.New("plain")); ok {
		t.Fatal("plain error must not be an AppError")
	}
}
