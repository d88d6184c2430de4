package classify

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/Tutortoise/face-enrichment-service/detections"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	for n := 1; n <= 16; n++ {
		logits := make([]float32, n)
		for i := range logits {
			logits[i] = float32(rng.NormFloat64() * 10)
		}

		var sum float64
		for _, p := range Softmax(logits) {
			if p < 0 || p > 1 {
				t.Fatalf("probability %f out of range", p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("n=%d: expected sum 1, got %f", n, sum)
		}
	}
}

func TestSoftmaxShiftInvariant(t *testing.T) {
	logits := []float32{1, 2, 3, -4}
	shifted := make([]float32, len(logits))
	for i, v := range logits {
		shifted[i] = v + 100
	}

	a, b := Softmax(logits), Softmax(shifted)
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-6 {
			t.Errorf("index %d: %f != %f", i, a[i], b[i])
		}
	}
}

func TestSoftmaxEdgeCases(t *testing.T) {
	if got := Softmax([]float32{42}); len(got) != 1 || got[0] != 1 {
		t.Errorf("Expected [1] for single logit, got %v", got)
	}
	if got := Softmax(nil); len(got) != 0 {
		t.Errorf("Expected empty result, got %v", got)
	}

	// large logits must not overflow
	got := Softmax([]float32{1000, 1000})
	if math.Abs(got[0]-0.5) > 1e-12 || math.Abs(got[1]-0.5) > 1e-12 {
		t.Errorf("Expected [0.5 0.5], got %v", got)
	}

	nan := float32(math.NaN())
	for _, p := range Softmax([]float32{nan, 1}) {
		if p != 0 {
			t.Errorf("Expected zeros for NaN input, got %v", p)
		}
	}
}

func TestTopK(t *testing.T) {
	tests := []struct {
		name  string
		probs []float64
		k     int
		want  []int
	}{
		{"ordered", []float64{0.1, 0.6, 0.3}, 2, []int{1, 2}},
		{"ties keep lower index", []float64{0.4, 0.2, 0.4}, 2, []int{0, 2}},
		{"k larger than input", []float64{0.5, 0.5}, 5, []int{0, 1}},
		{"zero k", []float64{1}, 0, nil},
		{"empty", nil, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TopK(tt.probs, tt.k); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestArgMax(t *testing.T) {
	i, p := ArgMax([]float64{0.2, 0.5, 0.3})
	if i != 1 || p != 0.5 {
		t.Errorf("Expected (1, 0.5), got (%d, %f)", i, p)
	}
	if i, _ := ArgMax(nil); i != -1 {
		t.Errorf("Expected -1 for empty input, got %d", i)
	}
}

func TestBlendAge(t *testing.T) {
	result, err := BlendAge([]float64{5, 23}, []float64{0.3, 0.7}, DefaultAgeCorrection())
	if err != nil {
		t.Fatalf("BlendAge failed: %v", err)
	}
	// (5*0.3 + 23*0.7) / 1.0, not above 20 so uncorrected
	if math.Abs(result.Estimate-17.6) > 1e-9 {
		t.Errorf("Expected 17.6, got %f", result.Estimate)
	}
	if result.Confidence != 0.7 {
		t.Errorf("Expected confidence 0.7, got %f", result.Confidence)
	}
}

func TestBlendAgeCorrection(t *testing.T) {
	buckets := AgeBuckets()
	probs := make([]float64, len(buckets))
	probs[4] = 0.6 // 35
	probs[5] = 0.4 // 45

	result, err := BlendAge(buckets, probs, DefaultAgeCorrection())
	if err != nil {
		t.Fatalf("BlendAge failed: %v", err)
	}
	want := (35*0.6 + 45*0.4) * 1.15
	if math.Abs(result.Estimate-want) > 1e-9 {
		t.Errorf("Expected %f, got %f", want, result.Estimate)
	}
	if result.Confidence != 0.6 {
		t.Errorf("Expected confidence 0.6, got %f", result.Confidence)
	}

	uncorrected, _ := BlendAge(buckets, probs, AgeCorrection{Threshold: 20, Multiplier: 1})
	if math.Abs(uncorrected.Estimate-39) > 1e-9 {
		t.Errorf("Expected 39 with unit multiplier, got %f", uncorrected.Estimate)
	}
}

func TestBlendAgeEdgeCases(t *testing.T) {
	result, err := BlendAge([]float64{1, 5}, []float64{0, 0}, DefaultAgeCorrection())
	if err != nil {
		t.Fatalf("BlendAge failed: %v", err)
	}
	if result.Estimate != 0 || math.IsNaN(result.Estimate) {
		t.Errorf("Expected 0 when probabilities sum to zero, got %f", result.Estimate)
	}

	single, err := BlendAge([]float64{12}, []float64{0.9}, DefaultAgeCorrection())
	if err != nil {
		t.Fatalf("BlendAge failed: %v", err)
	}
	if single.Estimate != 12 || single.Confidence != 0.9 {
		t.Errorf("Expected (12, 0.9), got %+v", single)
	}

	if _, err := BlendAge(AgeBuckets(), []float64{0.5, 0.5}, DefaultAgeCorrection()); !errors.Is(err, detections.ErrOutputShape) {
		t.Errorf("Expected ErrOutputShape for bucket mismatch, got %v", err)
	}
}

func TestBlendAgeUnnormalizedOutput(t *testing.T) {
	tests := []struct {
		name    string
		buckets []float64
		raw     []float64
	}{
		{"above one", AgeBuckets(), []float64{0, 3.2, 1.1, 0, 0, 0, 0, 0}},
		{"negative", []float64{5, 23}, []float64{-0.3, -0.7}},
		{"nan", []float64{5, 23}, []float64{math.NaN(), 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := BlendAge(tt.buckets, tt.raw, AgeCorrection{Threshold: 20, Multiplier: 1})
			if err != nil {
				t.Fatalf("BlendAge failed: %v", err)
			}
			if math.IsNaN(result.Confidence) || result.Confidence < 0 || result.Confidence > 1 {
				t.Errorf("Confidence %f outside [0,1]", result.Confidence)
			}

			logits := make([]float32, len(tt.raw))
			for i, v := range tt.raw {
				logits[i] = float32(v)
			}
			probs := Softmax(logits)
			top := TopK(probs, 2)
			if math.Abs(result.Confidence-probs[top[0]]) > 1e-9 {
				t.Errorf("Expected softmax confidence %f, got %f", probs[top[0]], result.Confidence)
			}
		})
	}

	// -0.3 beats -0.7, so the estimate leans toward 5
	result, _ := BlendAge([]float64{5, 23}, []float64{-0.3, -0.7}, DefaultAgeCorrection())
	if result.Estimate <= 5 || result.Estimate >= 14 {
		t.Errorf("Expected estimate between 5 and 14, got %f", result.Estimate)
	}
}
