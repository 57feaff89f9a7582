package imagegen

// VariationCount is the fixed number of output images produced per request.
const VariationCount = 3

// angleInstructions holds the per-variation camera directions, indexed by
// variation. Every angle keeps the subject's face visible so the catalogue
// set reads as one consistent model.
var angleInstructions = [VariationCount]string{
	"Front-facing view of the model, camera at chest height. The model's face must be clearly visible.",
	"Three-quarter view of the model, body turned slightly away from the camera. The model's face must remain clearly visible.",
	"Back view of the model showing the rear of the garment, head turned over the shoulder so the model's face remains visible.",
}

// AngleInstruction returns the camera direction for a variation index.
func AngleInstruction(variation int) string {
	return angleInstructions[variation]
}
