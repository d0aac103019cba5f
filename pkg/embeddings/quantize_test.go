package embeddings

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantizeSize(t *testing.T) {
	vec := make([]float32, Dimensions)
	for i := range vec {
		vec[i] = float32(i) / Dimensions
	}

	q, err := Quantize(vec)
	require.NoError(t, err)
	assert.Len(t, q, QuantizedSize)
}

func TestQuantize_WrongDimensions(t *testing.T) {
	_, err := Quantize([]float32{1, 2, 3})
	assert.Error(t, err)

	_, err = Dequantize([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestQuantizeDequantize_ApproximateRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vec := make([]float32, Dimensions)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}

	q, err := Quantize(vec)
	require.NoError(t, err)

	back, err := Dequantize(q)
	require.NoError(t, err)
	require.Len(t, back, Dimensions)

	// Lossy by design: each value must land within one quantization step
	// of the original.
	var min, max float32 = vec[0], vec[0]
	for _, v := range vec {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	step := float64(max-min) / 254
	for i := range vec {
		assert.InDelta(t, float64(vec[i]), float64(back[i]), step+1e-6, "dimension %d", i)
	}
}

func TestQuantize_PreservesCosineSimilarity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := make([]float32, Dimensions)
	for i := range a {
		a[i] = float32(rng.NormFloat64())
	}

	q, err := Quantize(a)
	require.NoError(t, err)
	back, err := Dequantize(q)
	require.NoError(t, err)

	sim := cosine(a, back)
	assert.Greater(t, sim, 0.99, "dequantized vector drifted too far from original")
}

func TestQuantize_ConstantVector(t *testing.T) {
	vec := make([]float32, Dimensions)
	for i := range vec {
		vec[i] = 0.5
	}

	q, err := Quantize(vec)
	require.NoError(t, err)
	back, err := Dequantize(q)
	require.NoError(t, err)

	for _, v := range back {
		assert.InDelta(t, 0.5, float64(v), 1e-6)
	}
}

func TestQuantize_ZeroVector(t *testing.T) {
	q, err := Quantize(ZeroVector())
	require.NoError(t, err)
	back, err := Dequantize(q)
	require.NoError(t, err)

	for _, v := range back {
		assert.Zero(t, v)
	}
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
