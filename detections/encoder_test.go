package detections

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestEncodeShape(t *testing.T) {
	img := solidImage(64, 48, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	tensor, err := Encode(img, 32, 24, RawProfile())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	defer tensor.Release()

	want := []int64{1, 3, 24, 32}
	for i := range want {
		if tensor.Shape[i] != want[i] {
			t.Fatalf("Expected shape %v, got %v", want, tensor.Shape)
		}
	}
	if len(tensor.Data) != 3*24*32 {
		t.Errorf("Expected %d values, got %d", 3*24*32, len(tensor.Data))
	}
}

func TestEncodeProfiles(t *testing.T) {
	c := color.NRGBA{R: 200, G: 100, B: 50, A: 255}
	img := solidImage(8, 8, c)

	tests := []struct {
		name    string
		profile Profile
		want    [3]float32
	}{
		{"raw", RawProfile(), [3]float32{200.0 / 255, 100.0 / 255, 50.0 / 255}},
		// BGR order with Caffe means
		{"caffe", CaffeProfile(), [3]float32{50 - 104, 100 - 117, 200 - 123}},
		{"imagenet", ImageNetProfile(), [3]float32{
			(200.0/255 - 0.485) / 0.229,
			(100.0/255 - 0.456) / 0.224,
			(50.0/255 - 0.406) / 0.225,
		}},
		{"detector", DetectorProfile(), [3]float32{
			(200 - 127) / 128.0,
			(100 - 127) / 128.0,
			(50 - 127) / 128.0,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := Encode(img, 8, 8, tt.profile)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			defer tensor.Release()

			plane := 8 * 8
			for ch := 0; ch < 3; ch++ {
				for i := 0; i < plane; i++ {
					got := tensor.Data[ch*plane+i]
					if math.Abs(float64(got-tt.want[ch])) > 1e-4 {
						t.Fatalf("channel %d index %d: expected %f, got %f", ch, i, tt.want[ch], got)
					}
				}
			}
		})
	}
}

func TestEncodeGrayProfile(t *testing.T) {
	tests := []struct {
		c    color.NRGBA
		want float32
	}{
		{color.NRGBA{A: 255}, -1},
		{color.NRGBA{R: 255, G: 255, B: 255, A: 255}, 1},
	}

	for _, tt := range tests {
		tensor, err := Encode(solidImage(6, 6, tt.c), 4, 4, GrayProfile())
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if tensor.Shape[1] != 1 {
			t.Errorf("Expected 1 channel, got %d", tensor.Shape[1])
		}
		for i, v := range tensor.Data {
			if math.Abs(float64(v-tt.want)) > 1e-4 {
				t.Fatalf("index %d: expected %f, got %f", i, tt.want, v)
			}
		}
		tensor.Release()
	}
}

func TestEncodeChannelMajorLayout(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{B: 255, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{A: 255})

	tensor, err := Encode(img, 2, 2, RawProfile())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	defer tensor.Release()

	want := []float32{
		1, 0, 0, 0, // R plane
		0, 1, 0, 0, // G plane
		0, 0, 1, 0, // B plane
	}
	for i := range want {
		if math.Abs(float64(tensor.Data[i]-want[i])) > 1e-6 {
			t.Fatalf("Expected %v, got %v", want, tensor.Data)
		}
	}
}

func TestEncodeInvalidRegion(t *testing.T) {
	if _, err := Encode(nil, 8, 8, RawProfile()); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("Expected ErrInvalidRegion for nil image, got %v", err)
	}

	empty := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	if _, err := Encode(empty, 8, 8, RawProfile()); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("Expected ErrInvalidRegion for empty image, got %v", err)
	}

	img := solidImage(4, 4, color.NRGBA{A: 255})
	if _, err := Encode(img, 0, 8, RawProfile()); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("Expected ErrInvalidRegion for zero target, got %v", err)
	}
}

func TestProfileKindString(t *testing.T) {
	if ProfileMeanSubtractBGR.String() != "mean-subtract-bgr" {
		t.Errorf("Unexpected name %q", ProfileMeanSubtractBGR.String())
	}
	if ProfileKind(42).String() != "profile(42)" {
		t.Errorf("Unexpected name %q", ProfileKind(42).String())
	}
}
