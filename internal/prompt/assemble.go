package prompt

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/domain"
)

var titleCaser = cases.Title(language.English)

// Assembler turns model and scene parameters into the generation prompt. It
// owns the template cache; construct one at startup and share it.
type Assembler struct {
	lib *Library
}

// NewAssembler builds an Assembler around the given template library.
func NewAssembler(lib *Library) *Assembler {
	return &Assembler{lib: lib}
}

// Assemble returns the deterministic prompt string for the given parameters
// and template version. Unknown preset keys degrade to the raw key; only a
// missing template document fails assembly.
func (a *Assembler) Assemble(model domain.ModelParams, scene domain.SceneParams, version string) (string, error) {
	tpl, err := a.lib.Load(version)
	if err != nil {
		return "", err
	}

	envDesc := lookup(tpl.Environments, scene.Environment)
	poseDesc := lookup(tpl.Poses, scene.PosePreset)
	framingDesc := lookup(tpl.Framing, scene.Framing)
	lightingDesc := tpl.Lighting[scene.Environment]

	var b strings.Builder
	b.WriteString("Generate a photorealistic catalogue image of a model wearing the garment shown in the reference image(s).\n")
	if model.ProductType != "" {
		fmt.Fprintf(&b, "Garment category: %s.\n", titleCaser.String(model.ProductType))
	}

	b.WriteString("\nMODEL: ")
	b.WriteString(a.modelDescription(tpl, model))
	b.WriteString("\n")

	fmt.Fprintf(&b, "\nPOSE: %s\n", poseDesc)
	fmt.Fprintf(&b, "\nFRAMING: %s\n", framingDesc)
	fmt.Fprintf(&b, "\nENVIRONMENT: %s\n", envDesc)
	fmt.Fprintf(&b, "\nLIGHTING: %s\n", lightingDesc)
	fmt.Fprintf(&b, "\nQUALITY REQUIREMENTS:\n%s\n", strings.TrimSpace(tpl.Quality))
	fmt.Fprintf(&b, "\nOUTPUT REQUIREMENTS:\n%s\n", strings.TrimSpace(tpl.Output))
	fmt.Fprintf(&b, "\nNEGATIVE (avoid these):\n%s", strings.TrimSpace(tpl.Negative))

	return b.String(), nil
}

// modelDescription renders either the virtual-model description synthesized
// from presets, or the reference-photo instruction when a model photo is
// attached to the request.
func (a *Assembler) modelDescription(tpl *Template, model domain.ModelParams) string {
	if model.ModelPhotoKey != "" {
		desc := "Use the exact appearance of the person shown in the supplied model reference photo. " +
			"Preserve their face, skin tone, hair and build precisely; do not alter their identity."
		if summary := measurementsSummary(model.Measurements); summary != "" {
			desc += " Supporting measurements (metadata only, do not override the photo): " + summary + "."
		}
		return desc
	}

	desc := fmt.Sprintf("A %s model, age %s, Fitzpatrick skin tone %s, %s body type",
		model.Gender, model.AgeRange, model.SkinTone, model.BodyType)

	if eth := lookupOptional(tpl.Ethnicities, model.Ethnicity); eth != "" {
		desc += ", " + eth
	}
	hairStyle := lookupOptional(tpl.HairStyles, model.HairStyle)
	hairColor := lookupOptional(tpl.HairColors, model.HairColor)
	switch {
	case hairColor != "" && hairStyle != "":
		desc += ", " + hairColor + ", " + hairStyle
	case hairStyle != "":
		desc += ", " + hairStyle
	case hairColor != "":
		desc += ", " + hairColor
	}
	if extra := strings.TrimSpace(model.Extra); extra != "" {
		desc += ". Additional details: " + extra
	}
	if summary := measurementsSummary(model.Measurements); summary != "" {
		desc += ". Measurements: " + summary
	}
	return desc
}

func measurementsSummary(m *domain.Measurements) string {
	if m == nil || m.IsZero() {
		return ""
	}
	var parts []string
	if m.HeightCM > 0 {
		parts = append(parts, fmt.Sprintf("height %d cm", m.HeightCM))
	}
	if m.WeightKG > 0 {
		parts = append(parts, fmt.Sprintf("weight %.0f kg", m.WeightKG))
	}
	if m.ChestCM > 0 {
		parts = append(parts, fmt.Sprintf("chest/bust %d cm", m.ChestCM))
	}
	if m.WaistCM > 0 {
		parts = append(parts, fmt.Sprintf("waist %d cm", m.WaistCM))
	}
	if m.HipsCM > 0 {
		parts = append(parts, fmt.Sprintf("hips %d cm", m.HipsCM))
	}
	if m.InseamCM > 0 {
		parts = append(parts, fmt.Sprintf("inseam %d cm", m.InseamCM))
	}
	if m.ShoeSizeEU > 0 {
		parts = append(parts, fmt.Sprintf("shoe size EU %.1f", m.ShoeSizeEU))
	}
	return strings.Join(parts, ", ")
}
