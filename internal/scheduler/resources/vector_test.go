package resources

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector_Arithmetic(t *testing.T) {
	a := NewVector(map[Dimension]float64{Cpu: 4, Memory: 1024})
	b := NewVector(map[Dimension]float64{Cpu: 1.5, Gpu: 1})

	assert.True(t, a.Add(b).Equal(NewVector(map[Dimension]float64{Cpu: 5.5, Memory: 1024, Gpu: 1})))
	assert.True(t, a.Sub(b).Equal(NewVector(map[Dimension]float64{Cpu: 2.5, Memory: 1024, Gpu: -1})))
	assert.True(t, a.Max(b).Equal(NewVector(map[Dimension]float64{Cpu: 4, Memory: 1024, Gpu: 1})))
	assert.True(t, a.Min(b).Equal(NewVector(map[Dimension]float64{Cpu: 1.5})))
	assert.True(t, a.ScaleFloat(0.5).Equal(NewVector(map[Dimension]float64{Cpu: 2, Memory: 512})))
	assert.True(t, a.Sub(b).ClampNonNegative().Equal(NewVector(map[Dimension]float64{Cpu: 2.5, Memory: 1024})))

	// Operations return copies.
	assert.True(t, a.Equal(NewVector(map[Dimension]float64{Cpu: 4, Memory: 1024})))
}

func TestVector_ExactArithmetic(t *testing.T) {
	v := Vector{}
	tenth := NewVector(map[Dimension]float64{Cpu: 0.1})
	for i := 0; i < 10; i++ {
		v = v.Add(tenth)
	}
	assert.True(t, v.Get(Cpu).Equal(decimal.NewFromInt(1)))
}

func TestVector_Dominates(t *testing.T) {
	tests := map[string]struct {
		a        Vector
		b        Vector
		expected bool
	}{
		"equal": {
			a:        NewVector(map[Dimension]float64{Cpu: 1, Memory: 1}),
			b:        NewVector(map[Dimension]float64{Cpu: 1, Memory: 1}),
			expected: true,
		},
		"greater in one": {
			a:        NewVector(map[Dimension]float64{Cpu: 2, Memory: 1}),
			b:        NewVector(map[Dimension]float64{Cpu: 1, Memory: 1}),
			expected: true,
		},
		"less in one": {
			a:        NewVector(map[Dimension]float64{Cpu: 2, Memory: 1}),
			b:        NewVector(map[Dimension]float64{Cpu: 1, Memory: 2}),
			expected: false,
		},
		"zero dominates zero": {
			expected: true,
		},
		"zero does not dominate gpu": {
			b:        NewVector(map[Dimension]float64{Gpu: 1}),
			expected: false,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.a.Dominates(tc.b))
		})
	}
}

func TestVector_Exceeds(t *testing.T) {
	quota := NewVector(map[Dimension]float64{Cpu: 8, Memory: 100})
	d, ok := NewVector(map[Dimension]float64{Cpu: 4, Memory: 200}).Exceeds(quota)
	assert.True(t, ok)
	assert.Equal(t, Memory, d)

	_, ok = NewVector(map[Dimension]float64{Cpu: 8}).Exceeds(quota)
	assert.False(t, ok)
}

func TestFromFloatMap(t *testing.T) {
	v, err := FromFloatMap(map[string]float64{"cpu": 2, "memory": 4096})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"cpu": 2, "memory": 4096}, v.ToFloatMap())

	_, err = FromFloatMap(map[string]float64{"tpu": 1})
	assert.Error(t, err)
}

func TestFromStringMap(t *testing.T) {
	v, err := FromStringMap(map[string]string{"cpu": "0.1", "disk": "20"})
	require.NoError(t, err)
	assert.True(t, v.Get(Cpu).Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, 20.0, v.Float64(Disk))

	_, err = FromStringMap(map[string]string{"cpu": "lots"})
	assert.Error(t, err)
}

func TestVector_String(t *testing.T) {
	assert.Equal(t, "{}", Vector{}.String())
	assert.Equal(t, "{cpu: 4, gpu: 1}", NewVector(map[Dimension]float64{Gpu: 1, Cpu: 4}).String())
}

func TestVector_Sum(t *testing.T) {
	v := NewVector(map[Dimension]float64{Cpu: 1, Memory: 2, Gpu: 3, Disk: 4})
	assert.True(t, v.Sum().Equal(decimal.NewFromInt(10)))
	assert.True(t, v.IsNonNegative())
	assert.False(t, v.IsZero())
	assert.True(t, Vector{}.IsZero())
}
