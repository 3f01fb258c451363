//go:build integration

package testutil

import (
	"errors"
	"testing"

	"github.com/trafficwise/platform/internal/domain"
)

// AssertAppError fails unless err is an AppError with the given code and HTTP status.
func AssertAppError(t *testing.T, err error, code string, status int) {
	t.Helper()
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
	if appErr.Code != code {
		t.Errorf("expected error code %s, got %s (%s)", code, appErr.Code, appErr.Message)
	}
	if appErr.Status != status {
		t.Errorf("expected status %d, got %d", status, appErr.Status)
	}
}
