package resources

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Vector holds one quantity per Dimension. It is a value type: assignment copies it and no method mutates the
// receiver. The zero Vector is zero in every dimension.
type Vector [numDimensions]decimal.Decimal

// NewVector returns a Vector with the given quantities; dimensions not mentioned are zero.
func NewVector(quantities map[Dimension]float64) Vector {
	var v Vector
	for d, q := range quantities {
		v[d] = decimal.NewFromFloat(q)
	}
	return v
}

// FromFloatMap builds a Vector from dimension names, as found in config and workload files.
func FromFloatMap(m map[string]float64) (Vector, error) {
	var v Vector
	for name, q := range m {
		d, err := ParseDimension(name)
		if err != nil {
			return Vector{}, err
		}
		v[d] = decimal.NewFromFloat(q)
	}
	return v, nil
}

// FromStringMap is like FromFloatMap but parses decimal strings, e.g. "0.1", without going through float64.
func FromStringMap(m map[string]string) (Vector, error) {
	var v Vector
	for name, s := range m {
		d, err := ParseDimension(name)
		if err != nil {
			return Vector{}, err
		}
		q, err := decimal.NewFromString(s)
		if err != nil {
			return Vector{}, errors.WithMessagef(err, "invalid quantity for %s", name)
		}
		v[d] = q
	}
	return v, nil
}

func (v Vector) Get(d Dimension) decimal.Decimal {
	return v[d]
}

// Float64 returns the quantity of d as a float, for reporting and heuristics only.
func (v Vector) Float64(d Dimension) float64 {
	return v[d].InexactFloat64()
}

// With returns a copy of v with dimension d set to q.
func (v Vector) With(d Dimension, q decimal.Decimal) Vector {
	v[d] = q
	return v
}

func (v Vector) Add(w Vector) Vector {
	for i := range v {
		v[i] = v[i].Add(w[i])
	}
	return v
}

func (v Vector) Sub(w Vector) Vector {
	for i := range v {
		v[i] = v[i].Sub(w[i])
	}
	return v
}

// Scale multiplies every dimension by f.
func (v Vector) Scale(f decimal.Decimal) Vector {
	for i := range v {
		v[i] = v[i].Mul(f)
	}
	return v
}

// ScaleFloat is Scale with a float factor.
func (v Vector) ScaleFloat(f float64) Vector {
	return v.Scale(decimal.NewFromFloat(f))
}

// Max returns the componentwise maximum of v and w.
func (v Vector) Max(w Vector) Vector {
	for i := range v {
		v[i] = decimal.Max(v[i], w[i])
	}
	return v
}

// Min returns the componentwise minimum of v and w.
func (v Vector) Min(w Vector) Vector {
	for i := range v {
		v[i] = decimal.Min(v[i], w[i])
	}
	return v
}

// ClampNonNegative returns v with negative quantities replaced by zero.
func (v Vector) ClampNonNegative() Vector {
	for i := range v {
		if v[i].IsNegative() {
			v[i] = decimal.Zero
		}
	}
	return v
}

// Dominates returns true if v is at least w in every dimension.
func (v Vector) Dominates(w Vector) bool {
	for i := range v {
		if v[i].LessThan(w[i]) {
			return false
		}
	}
	return true
}

// Exceeds returns the first dimension in which v is strictly greater than w.
func (v Vector) Exceeds(w Vector) (Dimension, bool) {
	for _, d := range AllDimensions {
		if v[d].GreaterThan(w[d]) {
			return d, true
		}
	}
	return 0, false
}

func (v Vector) IsZero() bool {
	for i := range v {
		if !v[i].IsZero() {
			return false
		}
	}
	return true
}

// IsNonNegative returns true if no quantity in v is less than zero.
func (v Vector) IsNonNegative() bool {
	for i := range v {
		if v[i].IsNegative() {
			return false
		}
	}
	return true
}

func (v Vector) Equal(w Vector) bool {
	for i := range v {
		if !v[i].Equal(w[i]) {
			return false
		}
	}
	return true
}

// Sum adds up all dimensions. Units differ across dimensions, so this is only meaningful as a heuristic.
func (v Vector) Sum() decimal.Decimal {
	rv := decimal.Zero
	for i := range v {
		rv = rv.Add(v[i])
	}
	return rv
}

// ToFloatMap returns the non-zero dimensions keyed by name.
func (v Vector) ToFloatMap() map[string]float64 {
	rv := make(map[string]float64)
	for _, d := range AllDimensions {
		if !v[d].IsZero() {
			rv[d.String()] = v[d].InexactFloat64()
		}
	}
	return rv
}

// String prints the non-zero dimensions in canonical order, e.g. {cpu: 4, memory: 8192}.
func (v Vector) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	first := true
	for _, d := range AllDimensions {
		if v[d].IsZero() {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", d, v[d].String()))
		first = false
	}
	sb.WriteString("}")
	return sb.String()
}
