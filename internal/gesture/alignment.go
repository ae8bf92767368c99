package gesture

import (
	"fmt"
	"strconv"
	"strings"
)

// AlignmentKind selects which musical boundary a trigger waits for.
type AlignmentKind int

const (
	AlignImmediate AlignmentKind = iota
	AlignBeat
	AlignBar
	AlignPhrase
	AlignSubdivision

	alignmentKinds
)

func (k AlignmentKind) String() string {
	switch k {
	case AlignImmediate:
		return "immediate"
	case AlignBeat:
		return "beat"
	case AlignBar:
		return "bar"
	case AlignPhrase:
		return "phrase"
	case AlignSubdivision:
		return "subdivision"
	}
	return "unknown"
}

// maxSubdivision caps the sub-beat grid density.
const maxSubdivision = 8

// Alignment pairs a boundary kind with its subdivision count when relevant.
type Alignment struct {
	Kind  AlignmentKind
	Steps int
}

// Immediate fires on the next Advance call.
func Immediate() Alignment { return Alignment{Kind: AlignImmediate} }

// NextBeat fires on the next beat boundary.
func NextBeat() Alignment { return Alignment{Kind: AlignBeat} }

// NextBar fires on the next downbeat.
func NextBar() Alignment { return Alignment{Kind: AlignBar} }

// NextPhrase fires on the next phrase boundary.
func NextPhrase() Alignment { return Alignment{Kind: AlignPhrase} }

// Subdivision fires at the nearest 1/n-beat grid point. n is normalized into
// [1, maxSubdivision]; n of 1 is equivalent to NextBeat.
func Subdivision(n int) Alignment {
	if n < 1 {
		n = 1
	}
	if n > maxSubdivision {
		n = maxSubdivision
	}
	return Alignment{Kind: AlignSubdivision, Steps: n}
}

func (a Alignment) String() string {
	if a.Kind == AlignSubdivision {
		return fmt.Sprintf("1/%d", a.Steps)
	}
	return a.Kind.String()
}

// ParseAlignment reads an alignment from its textual form, e.g. "beat",
// "bar", "phrase", "now" or "1/4". Unrecognized input falls back to beat
// alignment.
func ParseAlignment(s string) Alignment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate", "now":
		return Immediate()
	case "bar", "downbeat", "measure":
		return NextBar()
	case "phrase":
		return NextPhrase()
	case "beat", "":
		return NextBeat()
	}
	if rest, ok := strings.CutPrefix(strings.TrimSpace(s), "1/"); ok {
		if n, err := strconv.Atoi(rest); err == nil {
			return Subdivision(n)
		}
	}
	return NextBeat()
}
