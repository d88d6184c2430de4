// Package classify turns per-face classifier outputs into labels and age
// estimates.
package classify

import (
	"fmt"
	"math"
	"sort"

	"github.com/Tutortoise/face-enrichment-service/detections"
	"github.com/Tutortoise/face-enrichment-service/models"
)

// AgeCorrection scales blended estimates above Threshold by Multiplier.
type AgeCorrection struct {
	Threshold  float64
	Multiplier float64
}

// DefaultAgeCorrection is the bias correction the bucket age model was tuned with.
func DefaultAgeCorrection() AgeCorrection {
	return AgeCorrection{Threshold: 20, Multiplier: 1.15}
}

// AgeBuckets returns the representative age of each bucket the age model predicts.
func AgeBuckets() []float64 {
	return []float64{1, 5, 12, 23, 35, 45, 58, 75}
}

// Softmax normalizes logits into probabilities. The max logit is subtracted
// before exponentiating. If the sum is zero or not finite every probability is 0.
func Softmax(logits []float32) []float64 {
	probs := make([]float64, len(logits))
	if len(logits) == 0 {
		return probs
	}

	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if float64(v) > maxLogit {
			maxLogit = float64(v)
		}
	}

	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(float64(v) - maxLogit)
		sum += probs[i]
	}

	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		clear(probs)
		return probs
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// TopK returns the indices of the k highest probabilities, highest first.
// Equal probabilities keep the lower index first.
func TopK(probs []float64, k int) []int {
	if k <= 0 || len(probs) == 0 {
		return nil
	}
	if k > len(probs) {
		k = len(probs)
	}

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})
	return idx[:k]
}

// ArgMax returns the index and value of the highest probability, or -1 for
// an empty slice.
func ArgMax(probs []float64) (int, float64) {
	top := TopK(probs, 1)
	if len(top) == 0 {
		return -1, 0
	}
	return top[0], probs[top[0]]
}

// BlendAge averages the representative ages of the two most likely buckets,
// weighted by their probabilities, then applies the correction. Confidence is
// the top bucket probability. Outputs that are not probabilities (any value
// outside [0,1]) are treated as logits and normalized with Softmax first.
func BlendAge(buckets, probs []float64, correction AgeCorrection) (models.AgeResult, error) {
	if len(probs) == 0 || len(probs) != len(buckets) {
		return models.AgeResult{}, fmt.Errorf("%w: %d probabilities for %d age buckets",
			detections.ErrOutputShape, len(probs), len(buckets))
	}
	probs = asProbabilities(probs)

	top := TopK(probs, 2)
	p1 := probs[top[0]]

	var estimate float64
	if len(top) == 1 {
		estimate = buckets[top[0]]
	} else {
		p2 := probs[top[1]]
		if total := p1 + p2; total > 0 && !math.IsInf(total, 0) {
			estimate = (buckets[top[0]]*p1 + buckets[top[1]]*p2) / total
		}
	}

	if estimate > correction.Threshold && correction.Multiplier > 0 {
		estimate *= correction.Multiplier
	}

	return models.AgeResult{Estimate: estimate, Confidence: p1}, nil
}

func asProbabilities(values []float64) []float64 {
	for _, v := range values {
		if math.IsNaN(v) || v < 0 || v > 1 {
			logits := make([]float32, len(values))
			for i, x := range values {
				logits[i] = float32(x)
			}
			return Softmax(logits)
		}
	}
	return values
}
