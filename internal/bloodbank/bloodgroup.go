package bloodbank

import (
	"fmt"
	"strings"
)

// BloodGroup is one of the eight ABO/Rh groups, stored in canonical form ("A+", "O-", ...).
type BloodGroup string

const (
	APos  BloodGroup = "A+"
	ANeg  BloodGroup = "A-"
	BPos  BloodGroup = "B+"
	BNeg  BloodGroup = "B-"
	ABPos BloodGroup = "AB+"
	ABNeg BloodGroup = "AB-"
	OPos  BloodGroup = "O+"
	ONeg  BloodGroup = "O-"
)

var BloodGroups = []BloodGroup{APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg}

// ParseBloodGroup accepts case-insensitive input with optional spaces and
// the long Rh forms ("ab pos", "O NEGATIVE").
func ParseBloodGroup(s string) (BloodGroup, error) {
	v := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	for _, suffix := range []struct{ long, short string }{
		{"POSITIVE", "+"}, {"NEGATIVE", "-"}, {"POS", "+"}, {"NEG", "-"},
	} {
		if strings.HasSuffix(v, suffix.long) {
			v = strings.TrimSuffix(v, suffix.long) + suffix.short
			break
		}
	}
	for _, g := range BloodGroups {
		if string(g) == v {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: unknown blood group %q", ErrInvalidInput, s)
}

func (g BloodGroup) Valid() bool {
	for _, b := range BloodGroups {
		if g == b {
			return true
		}
	}
	return false
}
