package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"
)

type classedErr struct{ class string }

func (e *classedErr) Error() string      { return "classed" }
func (e *classedErr) ErrorClass() string { return e.class }

type fetchErr struct{}

func (fetchErr) Error() string { return "fetch failed" }

func TestClassify(t *testing.T) {
	tracker := &classedErr{class: "tracker_unavailable"}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "classed", err: tracker, want: "tracker_unavailable"},
		{name: "classed wrapped with cause", err: fmt.Errorf("%w: scan: %w", tracker, context.DeadlineExceeded), want: "tracker_unavailable"},
		{name: "empty class falls through", err: &classedErr{}, want: "errors_classederr"},
		{name: "deadline", err: fmt.Errorf("fetch page 3: %w", context.DeadlineExceeded), want: ClassTimeout},
		{name: "canceled", err: context.Canceled, want: ClassCanceled},
		{name: "innermost type", err: fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", fetchErr{})), want: "errors_fetcherr"},
		{name: "multi wrap takes first branch", err: fmt.Errorf("%w and %w", fetchErr{}, goerrors.New("x")), want: "errors_fetcherr"},
		{name: "plain", err: goerrors.New("boom"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
