package embeddings

import (
	"encoding/binary"
	"fmt"
	"math"
)

// QuantizedSize is the fixed byte footprint of a quantized vector: two
// float32 range parameters followed by Dimensions int8 values.
const QuantizedSize = 8 + Dimensions

// Quantize compresses a float32 vector into QuantizedSize bytes using
// linear int8 quantization with a per-vector [min, max] range header.
// Quantization is lossy by design; similarity computations downstream must
// tolerate the precision loss.
func Quantize(vec []float32) ([]byte, error) {
	if len(vec) != Dimensions {
		return nil, fmt.Errorf("expected %d dimensions, got %d", Dimensions, len(vec))
	}

	min, max := vec[0], vec[0]
	for _, v := range vec[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]byte, QuantizedSize)
	binary.LittleEndian.PutUint32(out[0:4], math.Float32bits(min))
	binary.LittleEndian.PutUint32(out[4:8], math.Float32bits(max))

	span := max - min
	if span == 0 {
		// Constant vector: every value quantizes to the midpoint.
		for i := range vec {
			out[8+i] = 0
		}
		return out, nil
	}

	for i, v := range vec {
		// Map [min, max] onto [-127, 127].
		q := math.Round(float64((v-min)/span)*254 - 127)
		out[8+i] = byte(int8(q))
	}
	return out, nil
}

// Dequantize reconstructs an approximate float32 vector from its quantized
// form.
func Dequantize(data []byte) ([]float32, error) {
	if len(data) != QuantizedSize {
		return nil, fmt.Errorf("expected %d bytes, got %d", QuantizedSize, len(data))
	}

	min := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	max := math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
	span := max - min

	vec := make([]float32, Dimensions)
	if span == 0 {
		for i := range vec {
			vec[i] = min
		}
		return vec, nil
	}

	for i := 0; i < Dimensions; i++ {
		q := float32(int8(data[8+i]))
		vec[i] = min + (q+127)/254*span
	}
	return vec, nil
}
