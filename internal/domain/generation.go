package domain

import "time"

// GenerationStatus enumerates generation request lifecycle states.
type GenerationStatus string

const (
	GenerationStatusQueued    GenerationStatus = "queued"
	GenerationStatusRunning   GenerationStatus = "running"
	GenerationStatusSucceeded GenerationStatus = "succeeded"
	GenerationStatusFailed    GenerationStatus = "failed"
)

// Garment image bounds enforced before persistence.
const (
	MinGarmentImages = 1
	MaxGarmentImages = 5
)

// DefaultTemplateVersion is the prompt template version pinned on new requests.
const DefaultTemplateVersion = "v0.1"

// Measurements carries optional physical measurements for the model. All
// fields are optional; zero values mean "not provided".
type Measurements struct {
	HeightCM   int     `json:"height_cm,omitempty"`
	WeightKG   float64 `json:"weight_kg,omitempty"`
	ChestCM    int     `json:"chest_bust_cm,omitempty"`
	WaistCM    int     `json:"waist_cm,omitempty"`
	HipsCM     int     `json:"hips_cm,omitempty"`
	InseamCM   int     `json:"inseam_cm,omitempty"`
	ShoeSizeEU float64 `json:"shoe_size_eu,omitempty"`
}

// IsZero reports whether no measurement was provided.
func (m Measurements) IsZero() bool {
	return m == Measurements{}
}

// ModelParams describes the model to render. When ModelPhotoKey is set the
// generator is instructed to preserve the appearance of the person in that
// reference photo; otherwise a virtual model is synthesized from the presets.
type ModelParams struct {
	AgeRange      string        `json:"age_range"`
	Gender        string        `json:"gender_presentation"`
	Ethnicity     string        `json:"ethnicity,omitempty"`
	SkinTone      string        `json:"skin_tone"`
	BodyType      string        `json:"body_type"`
	HairStyle     string        `json:"hair_style,omitempty"`
	HairColor     string        `json:"hair_color,omitempty"`
	Extra         string        `json:"additional_description,omitempty"`
	ProductType   string        `json:"product_type,omitempty"`
	ModelPhotoKey string        `json:"model_photo_key,omitempty"`
	Measurements  *Measurements `json:"measurements,omitempty"`
}

// SceneParams selects the environment, pose and framing preset keys.
type SceneParams struct {
	Environment string `json:"environment"`
	PosePreset  string `json:"pose_preset"`
	Framing     string `json:"framing"`
}

// GenerationRequest is one user-submitted generation job. Status only moves
// forward (queued -> running -> succeeded|failed); a stale running request may
// be restarted by the worker.
type GenerationRequest struct {
	ID              string
	SessionID       string
	Status          GenerationStatus
	GarmentKeys     []string
	ModelParams     ModelParams
	SceneParams     SceneParams
	OutputCount     int
	TemplateVersion string
	IdempotencyKey  string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GenerationOutput is one produced image belonging to a succeeded request.
// Variation indices are unique and dense from zero per request.
type GenerationOutput struct {
	ID             string
	RequestID      string
	StorageKey     string
	VariationIndex int
	Width          int
	Height         int
	CreatedAt      time.Time
}

// UsageCost is the single usage/cost record written atomically with the
// transition to succeeded. Token counts are nil when the provider does not
// report them.
type UsageCost struct {
	ID           string
	RequestID    string
	Provider     string
	ModelName    string
	InputTokens  *int
	OutputTokens *int
	EstimatedUSD float64
	DurationMS   int64
	RecordedAt   time.Time
}
