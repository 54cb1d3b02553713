package kb

import "math"

// CheckDimensions rejects vectors whose length is not dim.
func CheckDimensions(v []float32, dim int) error {
	if len(v) != dim {
		return Validationf("vector", "has %d dimensions, index expects %d", len(v), dim)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero
// vector. Both must have the same length.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
