package grading

import (
	"regexp"
	"strings"
)

// Roster listings render accessibility and minor-status annotations as a
// bracketed suffix, e.g. "Ayumi Iura - [PCD - MENOR]". The pedagogical
// listing renders the bare name, so the suffix must be stripped before
// matching a student across the two surfaces.
var nameSuffixRegex = regexp.MustCompile(`(?i)\s*-\s*\[[^\]]*\]\s*$`)

// CleanStudentName strips the bracketed suffix annotation from a rendered
// student name and trims surrounding whitespace. Names without a suffix are
// returned trimmed and otherwise unchanged.
func CleanStudentName(name string) string {
	return strings.TrimSpace(nameSuffixRegex.ReplaceAllString(name, ""))
}

// NamesMatch compares two rendered names ignoring suffix annotations,
// repeated inner whitespace and case.
func NamesMatch(a, b string) bool {
	return foldName(a) == foldName(b)
}

func foldName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(CleanStudentName(s)), " "))
}
