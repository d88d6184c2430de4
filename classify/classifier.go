package classify

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/Tutortoise/face-enrichment-service/detections"
	"github.com/Tutortoise/face-enrichment-service/engine"
	"github.com/Tutortoise/face-enrichment-service/imageops"
	"github.com/Tutortoise/face-enrichment-service/models"
)

// Preset configures one classifier model: how its crop is taken and encoded,
// how its output is bound and how scores become labels.
type Preset struct {
	Name    string
	Size    int
	Profile detections.Profile
	Binding engine.Binding
	Labels  []string
	// Softmax is false for models whose output is already a distribution.
	Softmax bool
	// Padding > 0 takes a padded square around the face. Zero crops the face
	// box as detected.
	Padding float64
}

// EmotionLabels are the classes of the eight-way emotion model.
func EmotionLabels() []string {
	return []string{"angry", "contempt", "disgusted", "fear", "happy", "neutral", "sad", "surprise"}
}

// GenderLabels are the classes of the gender model, in output order.
func GenderLabels() []string {
	return []string{"Male", "Female"}
}

// EmotionPreset is the 224x224 RGB emotion model with ImageNet normalization.
// Input and output names default to the model's first.
func EmotionPreset() Preset {
	return Preset{
		Name:    "emotion",
		Size:    224,
		Profile: detections.ImageNetProfile(),
		Binding: engine.Binding{Outputs: map[engine.Role]string{engine.RoleLogits: ""}},
		Labels:  EmotionLabels(),
		Softmax: true,
		Padding: detections.CropPadding,
	}
}

// EmotionGrayPreset is the older 48x48 grayscale emotion model.
func EmotionGrayPreset() Preset {
	p := EmotionPreset()
	p.Size = 48
	p.Profile = detections.GrayProfile()
	return p
}

func AgePreset() Preset {
	return Preset{
		Name:    "age",
		Size:    224,
		Profile: detections.CaffeProfile(),
		Binding: engine.Binding{Input: "input", Outputs: map[engine.Role]string{engine.RoleLogits: "age_prob"}},
	}
}

func GenderPreset() Preset {
	return Preset{
		Name:    "gender",
		Size:    224,
		Profile: detections.CaffeProfile(),
		Binding: engine.Binding{Input: "input", Outputs: map[engine.Role]string{engine.RoleLogits: "gender_prob"}},
		Labels:  GenderLabels(),
		Softmax: true,
	}
}

// Classifier runs one classifier model on face crops.
type Classifier struct {
	engine engine.Engine
	preset Preset
}

func NewClassifier(eng engine.Engine, preset Preset) (*Classifier, error) {
	if eng == nil {
		return nil, fmt.Errorf("%s classifier engine is nil", preset.Name)
	}
	if preset.Size <= 0 {
		return nil, fmt.Errorf("%s classifier input size %d", preset.Name, preset.Size)
	}
	return &Classifier{engine: eng, preset: preset}, nil
}

// Preset returns the classifier configuration.
func (c *Classifier) Preset() Preset {
	return c.preset
}

// CropRect returns the region of an image of the given size this classifier
// looks at for face.
func (c *Classifier) CropRect(face models.DetectedFace, imageWidth, imageHeight int) (models.Rect, error) {
	if c.preset.Padding > 0 {
		return detections.ComputeCropRect(face, imageWidth, imageHeight, c.preset.Padding)
	}
	return detections.ClampRect(face, imageWidth, imageHeight)
}

// Scores crops face out of img, runs the model and returns one probability
// per class.
func (c *Classifier) Scores(ctx context.Context, img image.Image, face models.DetectedFace) ([]float64, error) {
	bounds := img.Bounds()
	rect, err := c.CropRect(face, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	crop := imageops.Crop(img, rect.Image().Add(bounds.Min))
	input, err := detections.Encode(crop, c.preset.Size, c.preset.Size, c.preset.Profile)
	if err != nil {
		return nil, err
	}
	defer input.Release()

	outputs, err := c.engine.Run(ctx, map[string]*engine.Tensor{c.preset.Binding.Input: input})
	if err != nil {
		if !errors.Is(err, engine.ErrInferenceFailure) && ctx.Err() == nil {
			err = &engine.InferenceError{Model: c.preset.Name, Err: err}
		}
		return nil, err
	}
	defer engine.ReleaseAll(outputs)

	logits, ok := c.preset.Binding.Lookup(outputs, engine.RoleLogits)
	if !ok {
		return nil, fmt.Errorf("%w: %s logits", engine.ErrMissingOutput, c.preset.Name)
	}

	if c.preset.Softmax {
		return Softmax(logits.Data), nil
	}
	probs := make([]float64, len(logits.Data))
	for i, v := range logits.Data {
		probs[i] = float64(v)
	}
	return probs, nil
}

// Classify returns the most likely label for face.
func (c *Classifier) Classify(ctx context.Context, img image.Image, face models.DetectedFace) (*models.ClassificationResult, error) {
	probs, err := c.Scores(ctx, img, face)
	if err != nil {
		return nil, err
	}

	index, confidence := ArgMax(probs)
	if index < 0 {
		return nil, fmt.Errorf("%w: %s produced no scores", detections.ErrOutputShape, c.preset.Name)
	}

	return &models.ClassificationResult{
		Label:      c.label(index),
		Index:      index,
		Confidence: confidence,
	}, nil
}

func (c *Classifier) label(index int) string {
	if index < len(c.preset.Labels) {
		return c.preset.Labels[index]
	}
	return fmt.Sprintf("%s_%d", c.preset.Name, index)
}

// Close releases the classifier engine.
func (c *Classifier) Close() error {
	return c.engine.Close()
}

// AgeEstimator blends bucket probabilities from an age classifier.
type AgeEstimator struct {
	classifier *Classifier
	buckets    []float64
	correction AgeCorrection
}

func NewAgeEstimator(classifier *Classifier, buckets []float64, correction AgeCorrection) (*AgeEstimator, error) {
	if classifier == nil {
		return nil, fmt.Errorf("age classifier is nil")
	}
	if len(buckets) == 0 {
		return nil, fmt.Errorf("no age buckets")
	}
	return &AgeEstimator{
		classifier: classifier,
		buckets:    append([]float64(nil), buckets...),
		correction: correction,
	}, nil
}

// Estimate returns the blended age for face.
func (a *AgeEstimator) Estimate(ctx context.Context, img image.Image, face models.DetectedFace) (*models.AgeResult, error) {
	probs, err := a.classifier.Scores(ctx, img, face)
	if err != nil {
		return nil, err
	}

	result, err := BlendAge(a.buckets, probs, a.correction)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (a *AgeEstimator) Close() error {
	return a.classifier.Close()
}
