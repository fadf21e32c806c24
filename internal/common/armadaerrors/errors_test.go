package armadaerrors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected string
	}{
		"ErrAlreadyExists": {
			err:      &ErrAlreadyExists{Value: "job-1"},
			expected: `resource "job-1" already exists`,
		},
		"ErrAlreadyExists with type and message": {
			err:      &ErrAlreadyExists{Type: "job", Value: "job-1", Message: "submitted twice"},
			expected: `resource "job-1" of type "job" already exists; submitted twice`,
		},
		"ErrNotFound": {
			err:      &ErrNotFound{Type: "job", Value: "job-2"},
			expected: `resource "job-2" of type "job" does not exist`,
		},
		"ErrInvalidArgument": {
			err:      &ErrInvalidArgument{Name: "priority", Value: -1},
			expected: `value -1 is invalid for field "priority"`,
		},
		"ErrInvalidArgument with message": {
			err:      &ErrInvalidArgument{Name: "instances", Value: 0, Message: "must be positive"},
			expected: `value 0 is invalid for field "instances"; must be positive`,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	err := errors.WithMessage(errors.WithStack(&ErrAlreadyExists{Type: "job", Value: "a"}), "adding job")
	var e *ErrAlreadyExists
	if assert.True(t, errors.As(err, &e)) {
		assert.Equal(t, "a", e.Value)
	}
	var nf *ErrNotFound
	assert.False(t, errors.As(err, &nf))
}
