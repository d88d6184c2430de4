package detections

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/Tutortoise/face-enrichment-service/engine"
	"github.com/Tutortoise/face-enrichment-service/imageops"
)

// ProfileKind selects how pixel intensities become tensor values.
type ProfileKind int

const (
	// ProfileRaw scales to [0,1], RGB order.
	ProfileRaw ProfileKind = iota
	// ProfileMeanSubtractBGR subtracts a per-channel mean from unscaled values, BGR order.
	ProfileMeanSubtractBGR
	// ProfileStandardize applies (v/255 - mean)/std per channel, RGB order.
	ProfileStandardize
	// ProfileGraySymmetric maps grayscale to [-1,1] in a single channel.
	ProfileGraySymmetric
)

func (k ProfileKind) String() string {
	switch k {
	case ProfileRaw:
		return "raw"
	case ProfileMeanSubtractBGR:
		return "mean-subtract-bgr"
	case ProfileStandardize:
		return "standardize"
	case ProfileGraySymmetric:
		return "grayscale-symmetric"
	default:
		return fmt.Sprintf("profile(%d)", int(k))
	}
}

// Profile is a normalization recipe. Mean and Std are indexed by output channel.
type Profile struct {
	Kind ProfileKind
	Mean [3]float32
	Std  [3]float32
}

func RawProfile() Profile {
	return Profile{Kind: ProfileRaw}
}

// CaffeProfile is mean subtraction in BGR order with the usual Caffe means.
func CaffeProfile() Profile {
	return Profile{Kind: ProfileMeanSubtractBGR, Mean: [3]float32{104, 117, 123}}
}

// ImageNetProfile standardizes with ImageNet statistics.
func ImageNetProfile() Profile {
	return Profile{
		Kind: ProfileStandardize,
		Mean: [3]float32{0.485, 0.456, 0.406},
		Std:  [3]float32{0.229, 0.224, 0.225},
	}
}

// DetectorProfile maps pixels to (v-127)/128, expressed as a standardization.
func DetectorProfile() Profile {
	return Profile{
		Kind: ProfileStandardize,
		Mean: [3]float32{127.0 / 255, 127.0 / 255, 127.0 / 255},
		Std:  [3]float32{128.0 / 255, 128.0 / 255, 128.0 / 255},
	}
}

func GrayProfile() Profile {
	return Profile{Kind: ProfileGraySymmetric}
}

// Channels returns the number of tensor channels the profile produces.
func (p Profile) Channels() int {
	if p.Kind == ProfileGraySymmetric {
		return 1
	}
	return 3
}

// Encode resizes img to targetWidth×targetHeight and writes it into a
// [1, C, H, W] tensor, channel-major. The caller owns the tensor and must
// Release it.
func Encode(img image.Image, targetWidth, targetHeight int, profile Profile) (*engine.Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: source region is empty", ErrInvalidRegion)
	}
	if targetWidth <= 0 || targetHeight <= 0 {
		return nil, fmt.Errorf("%w: target %dx%d", ErrInvalidRegion, targetWidth, targetHeight)
	}

	resized := imageops.Resize(img, targetWidth, targetHeight)
	if profile.Kind == ProfileGraySymmetric {
		resized = imageops.ToGrayscale(resized)
	}

	channels := profile.Channels()
	t, err := engine.NewTensor(1, int64(channels), int64(targetHeight), int64(targetWidth))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegion, err)
	}

	encodeParallel(resized, t.Data, targetWidth, targetHeight, profile)
	return t, nil
}

func encodeParallel(img *image.NRGBA, buffer []float32, width, height int, profile Profile) {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == numWorkers-1 {
			endRow = height
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				encodeRow(img, buffer, y, width, height, profile)
			}
		}(startRow, endRow)
	}

	wg.Wait()
}

func encodeRow(img *image.NRGBA, buffer []float32, y, width, height int, profile Profile) {
	channelSize := width * height
	row := img.Pix[y*img.Stride:]
	offset := y * width

	for x := 0; x < width; x++ {
		i := offset + x
		r := float32(row[x*4])
		g := float32(row[x*4+1])
		b := float32(row[x*4+2])

		switch profile.Kind {
		case ProfileMeanSubtractBGR:
			buffer[i] = b - profile.Mean[0]
			buffer[channelSize+i] = g - profile.Mean[1]
			buffer[channelSize*2+i] = r - profile.Mean[2]
		case ProfileStandardize:
			buffer[i] = standardize(r/255.0, profile.Mean[0], profile.Std[0])
			buffer[channelSize+i] = standardize(g/255.0, profile.Mean[1], profile.Std[1])
			buffer[channelSize*2+i] = standardize(b/255.0, profile.Mean[2], profile.Std[2])
		case ProfileGraySymmetric:
			buffer[i] = (r/255.0)*2 - 1
		default:
			buffer[i] = r / 255.0
			buffer[channelSize+i] = g / 255.0
			buffer[channelSize*2+i] = b / 255.0
		}
	}
}

func standardize(v, mean, std float32) float32 {
	if std == 0 {
		return 0
	}
	return (v - mean) / std
}
