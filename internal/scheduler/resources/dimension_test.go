package resources

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/armadaproject/clustersim/internal/common/armadaerrors"
)

func TestParseDimension(t *testing.T) {
	tests := map[string]struct {
		name        string
		expected    Dimension
		expectError bool
	}{
		"cpu":        {name: "cpu", expected: Cpu},
		"memory":     {name: "memory", expected: Memory},
		"upper case": {name: "GPU", expected: Gpu},
		"disk":       {name: "disk", expected: Disk},
		"unknown":    {name: "vram", expectError: true},
		"empty":      {name: "", expectError: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			d, err := ParseDimension(tc.name)
			if tc.expectError {
				var e *armadaerrors.ErrInvalidArgument
				assert.True(t, errors.As(err, &e))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, d)
			assert.Equal(t, d, mustParse(t, d.String()))
		})
	}
}

func mustParse(t *testing.T, name string) Dimension {
	d, err := ParseDimension(name)
	assert.NoError(t, err)
	return d
}
