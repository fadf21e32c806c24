package resources

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/clustersim/internal/common/armadaerrors"
)

// Dimension is one of the fixed set of resource types the pool accounts for.
type Dimension int

const (
	Cpu Dimension = iota
	Memory
	Gpu
	Disk
	numDimensions
)

// AllDimensions lists every dimension in canonical order.
var AllDimensions = []Dimension{Cpu, Memory, Gpu, Disk}

var dimensionNames = [numDimensions]string{
	Cpu:    "cpu",
	Memory: "memory",
	Gpu:    "gpu",
	Disk:   "disk",
}

func (d Dimension) String() string {
	if d < 0 || d >= numDimensions {
		return "unknown"
	}
	return dimensionNames[d]
}

// ParseDimension returns the dimension called name. Matching is case-insensitive.
func ParseDimension(name string) (Dimension, error) {
	for _, d := range AllDimensions {
		if strings.EqualFold(dimensionNames[d], name) {
			return d, nil
		}
	}
	return 0, errors.WithStack(&armadaerrors.ErrInvalidArgument{
		Name:    "dimension",
		Value:   name,
		Message: "expected one of cpu, memory, gpu or disk",
	})
}
