package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFormats(t *testing.T) {
	art := NewArtifactID()
	assert.True(t, ValidArtifactID(art), "artifact id %q", art)
	assert.Len(t, art, len("ART-")+8)

	fact := NewFactID()
	assert.True(t, ValidFactID(fact), "fact id %q", fact)

	conflict := NewContradictionID()
	assert.True(t, ValidContradictionID(conflict), "conflict id %q", conflict)
	assert.Len(t, conflict, len("CONFLICT-")+6)
}

func TestIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewArtifactID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestValidateCaseID(t *testing.T) {
	tests := []struct {
		caseID string
		ok     bool
	}{
		{"COOK-2024-D-007847", true},
		{"NY-2023-CV-12345", true},
		{"cook-2024-D-1", false},
		{"COOK-24-D-1", false},
		{"COOK-2024-D", false},
		{"", false},
	}
	for _, tc := range tests {
		err := ValidateCaseID(tc.caseID)
		if tc.ok {
			assert.NoError(t, err, tc.caseID)
		} else {
			assert.Error(t, err, tc.caseID)
		}
	}
}

func TestValidTokenRejectsWrongShape(t *testing.T) {
	assert.False(t, ValidArtifactID("ART-abcdefgh")) // lowercase
	assert.False(t, ValidArtifactID("FACT-ABCDEFGH"))
	assert.False(t, ValidArtifactID("ART-ABC"))
	assert.False(t, ValidContradictionID("CONFLICT-ABCDEFGH"))
}
