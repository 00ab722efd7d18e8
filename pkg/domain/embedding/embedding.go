package embedding

import (
	"fmt"
	"math"
	"time"
)

// Embedding is the vector of one record (or one query text) under a specific
// model version.
type Embedding struct {
	EntityID     string    `json:"entity_id"`
	Value        []float32 `json:"value"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at"`
}

// VersionTag identifies the vector space a vector lives in. Vectors with
// different tags are never compared.
func VersionTag(provider, model, version string) string {
	return fmt.Sprintf("%s/%s@%s", provider, model, version)
}

// Normalize scales v to unit length in place. Zero vectors are left untouched.
func Normalize(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
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
