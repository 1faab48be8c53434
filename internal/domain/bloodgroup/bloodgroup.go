package bloodgroup

import "strings"

var valid = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

// All returns the eight ABO/RhD groups in display order.
func All() []string {
	return []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
}

// Normalize trims and upper-cases g ("ab+" -> "AB+").
func Normalize(g string) string {
	return strings.ToUpper(strings.TrimSpace(g))
}

func Valid(g string) bool { return valid[g] }
