package grading

import (
	"bytes"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// Remedial Learning ("Recomposição de Aprendizagem")
// ═══════════════════════════════════════════════════════════════════════════

// Limits enforced on remedial metadata at the invocation boundary.
const (
	MinRemedialDescriptionLen = 10
	MaxRemedialDescriptionLen = 5000
	MaxArtifactNameLen        = 80
	MaxArtifactSize           = 10 << 20 // 10 MiB
)

var (
	ErrDescriptionTooShort = errors.New("grading: remedial description below minimum length")
	ErrDescriptionTooLong  = errors.New("grading: remedial description above maximum length")
	ErrArtifactNameTooLong = errors.New("grading: artifact name above maximum length")
	ErrArtifactNameEmpty   = errors.New("grading: artifact name is required")
	ErrArtifactEmpty       = errors.New("grading: artifact content is required")
	ErrArtifactTooLarge    = errors.New("grading: artifact exceeds size ceiling")
	ErrArtifactNotPDF      = errors.New("grading: artifact is not a PDF document")
	ErrDateRangeInverted   = errors.New("grading: remedial start date after end date")
)

// pdfMagic is the leading byte signature of a PDF document.
var pdfMagic = []byte("%PDF-")

// RemedialPlan is the remedial metadata supplied with a run: the date range,
// description and supporting document applied to every remedial record the
// run registers.
type RemedialPlan struct {
	// Start and End bound the remedial period; Start <= End.
	Start time.Time
	End   time.Time

	// Description explains what will be recomposed, why and how.
	Description string

	// ArtifactName is the document name shown in the remote attachment list.
	ArtifactName string

	// Artifact is the raw PDF content.
	Artifact []byte
}

// Validate checks the plan against the boundary constraints. It never
// touches the remote session.
func (p RemedialPlan) Validate() error {
	if p.Start.After(p.End) {
		return ErrDateRangeInverted
	}
	if n := utf8.RuneCountInString(p.Description); n < MinRemedialDescriptionLen {
		return ErrDescriptionTooShort
	} else if n > MaxRemedialDescriptionLen {
		return ErrDescriptionTooLong
	}
	if p.ArtifactName == "" {
		return ErrArtifactNameEmpty
	}
	if utf8.RuneCountInString(p.ArtifactName) > MaxArtifactNameLen {
		return ErrArtifactNameTooLong
	}
	if len(p.Artifact) == 0 {
		return ErrArtifactEmpty
	}
	if len(p.Artifact) > MaxArtifactSize {
		return ErrArtifactTooLarge
	}
	if !bytes.HasPrefix(p.Artifact, pdfMagic) {
		return ErrArtifactNotPDF
	}
	return nil
}

// DescriptionHTML returns the description as the HTML fragment the remote
// rich-text editor expects.
func (p RemedialPlan) DescriptionHTML() string {
	if len(p.Description) > 0 && p.Description[0] == '<' {
		return p.Description
	}
	return fmt.Sprintf("<p>%s</p>", p.Description)
}

// RemedialLearningRecord is one registered remedial record for a
// (student, skill) pair whose final grade resolved to the C tier.
type RemedialLearningRecord struct {
	StudentName  string
	Skill        SkillID
	Plan         RemedialPlan
	RegisteredAt time.Time
}
