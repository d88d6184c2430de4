package detections

// Defaults for the 320x240 RFB face detector.
const (
	InputWidth     = 320
	InputHeight    = 240
	ConfThreshold  = 0.7
	IouThreshold   = 0.3
	MinBoxSize     = 1.0
	CropPadding    = 1.4
	ScoresOutput   = "scores"
	BoxesOutput    = "boxes"
	DetectorInput  = "input"
	CenterVariance = 0.1
	SizeVariance   = 0.2
)

// DefaultStrides lists feature-map strides in the order the model emits rows.
func DefaultStrides() []int {
	return []int{8, 16, 32, 64}
}

// DefaultBoxSizes lists reference box sizes in pixels, one set per stride.
func DefaultBoxSizes() [][]float64 {
	return [][]float64{
		{10, 16, 24},
		{32, 48},
		{64, 96},
		{128, 192, 256},
	}
}

// DefaultVariances returns the center/size variance constants the detector was trained with.
func DefaultVariances() Variances {
	return Variances{CenterVariance, CenterVariance, SizeVariance, SizeVariance}
}
