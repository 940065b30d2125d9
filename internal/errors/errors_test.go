package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  New(ErrCodeNotFound, "row not found"),
			want: "row not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "insert listing",
				Cause:   errors.New("underlying error"),
			},
			want: "insert listing: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternal, "wrapped error")

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(%v, cause) = false, want true", err)
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "nothing"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errors.New("boom"), ErrCodeUnavailable, "delete %d listings", 3)
	if err.Message != "delete 3 listings" {
		t.Errorf("Wrapf().Message = %q", err.Message)
	}
	if !IsUnavailable(err) {
		t.Errorf("Wrapf() code = %v, want %v", err.Code, ErrCodeUnavailable)
	}
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		pred func(error) bool
	}{
		{name: "not found", code: ErrCodeNotFound, pred: IsNotFound},
		{name: "conflict", code: ErrCodeConflict, pred: IsConflict},
		{name: "validation", code: ErrCodeValidation, pred: IsValidation},
		{name: "schema", code: ErrCodeSchema, pred: IsSchema},
		{name: "unavailable", code: ErrCodeUnavailable, pred: IsUnavailable},
		{name: "timeout", code: ErrCodeTimeout, pred: IsTimeout},
		{name: "canceled", code: ErrCodeCanceled, pred: IsCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direct := New(tt.code, "x")
			if !tt.pred(direct) {
				t.Errorf("predicate rejected direct %s error", tt.code)
			}
			wrapped := fmt.Errorf("outer: %w", direct)
			if !tt.pred(wrapped) {
				t.Errorf("predicate rejected wrapped %s error", tt.code)
			}
			if tt.pred(errors.New("plain")) {
				t.Error("predicate accepted a plain error")
			}
		})
	}
}

func TestGetCodeAndField(t *testing.T) {
	err := fmt.Errorf("ctx: %w", &AppError{Code: ErrCodeConflict, Message: "dup", Field: "job_identifier"})

	if got := GetCode(err); got != ErrCodeConflict {
		t.Errorf("GetCode() = %v, want %v", got, ErrCodeConflict)
	}
	if got := GetField(err); got != "job_identifier" {
		t.Errorf("GetField() = %q", got)
	}
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %v, want empty", got)
	}
}
