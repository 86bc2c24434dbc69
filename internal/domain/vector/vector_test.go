package vector

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("got %v", v)
	}
	if math.Abs(Dot(v, v)-1) > 1e-6 {
		t.Errorf("expected unit length, got %f", Dot(v, v))
	}
}

func TestNormalize_Zero(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	for _, x := range v {
		if x != 0 {
			t.Fatalf("got %v", v)
		}
	}
}

func TestDot_MismatchedLengths(t *testing.T) {
	if Dot([]float32{1}, []float32{1, 2}) != 0 {
		t.Error("expected 0")
	}
}

func TestCosine(t *testing.T) {
	if math.Abs(Cosine([]float32{1, 0}, []float32{2, 0})-1) > 1e-9 {
		t.Error("parallel vectors should have cosine 1")
	}
	if Cosine([]float32{1, 0}, []float32{0, 0}) != 0 {
		t.Error("zero vector should give 0")
	}
}

func TestClip01(t *testing.T) {
	cases := map[float64]float64{-0.2: 0, 0.4: 0.4, 1.3: 1, math.NaN(): 0}
	for in, want := range cases {
		if got := Clip01(in); got != want {
			t.Errorf("Clip01(%v) = %v, want %v", in, got, want)
		}
	}
}
