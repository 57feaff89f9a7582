package imagegen

import (
	"strings"
	"testing"
)

func TestAngleInstructionsDistinctAndFaceVisible(t *testing.T) {
	seen := make(map[string]int)
	for i := 0; i < VariationCount; i++ {
		instr := AngleInstruction(i)
		if instr == "" {
			t.Fatalf("variation %d has no angle instruction", i)
		}
		if !strings.Contains(strings.ToLower(instr), "face") {
			t.Errorf("variation %d does not require a visible face: %q", i, instr)
		}
		if prev, dup := seen[instr]; dup {
			t.Errorf("variations %d and %d share the same angle", prev, i)
		}
		seen[instr] = i
	}
}

func TestAngleInstructionCoversRearView(t *testing.T) {
	var hasBack bool
	for i := 0; i < VariationCount; i++ {
		if strings.Contains(strings.ToLower(AngleInstruction(i)), "back") {
			hasBack = true
		}
	}
	if !hasBack {
		t.Error("no variation shows the rear of the garment")
	}
}
