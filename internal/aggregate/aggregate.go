// Package aggregate merges named source units into one analyzable code blob.
//
// Multi-unit blobs carry a boundary marker line before each unit:
//
//	//// revu:unit <name> ////
//
// The marker format is part of the external contract: service-reported line
// numbers in a blob can be attributed back to a unit by scanning backward to
// the nearest marker. A unit whose own content contains a marker line is
// rejected rather than escaped, so blobs stay unambiguous.
package aggregate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoUnits is returned when aggregation is attempted with no source units.
var ErrNoUnits = errors.New("no source units supplied")

// ErrMarkerCollision is returned when a unit's content contains a line that
// would parse as a unit boundary marker.
var ErrMarkerCollision = errors.New("unit content contains a boundary marker line")

const (
	markerPrefix = "//// revu:unit "
	markerSuffix = " ////"
)

// Unit is one named source blob contributed to aggregation: a file, a pasted
// snippet, or a repository entry.
type Unit struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Marker returns the boundary line for a unit name.
func Marker(name string) string {
	return markerPrefix + name + markerSuffix
}

// parseMarker reports whether a line is a boundary marker and, if so, the
// unit name it carries.
func parseMarker(line string) (string, bool) {
	if !strings.HasPrefix(line, markerPrefix) || !strings.HasSuffix(line, markerSuffix) {
		return "", false
	}
	return line[len(markerPrefix) : len(line)-len(markerSuffix)], true
}

// Aggregate merges units into a single code blob plus a manifest of unit
// names in contribution order. A single unit passes through verbatim with no
// marker; two or more are joined with one marker line before each unit.
func Aggregate(units []Unit) (code string, manifest []string, err error) {
	if len(units) == 0 {
		return "", nil, ErrNoUnits
	}

	for _, u := range units {
		for _, line := range strings.Split(u.Content, "\n") {
			if _, ok := parseMarker(line); ok {
				return "", nil, fmt.Errorf("unit %q: %w", u.Name, ErrMarkerCollision)
			}
		}
		manifest = append(manifest, u.Name)
	}

	if len(units) == 1 {
		return units[0].Content, manifest, nil
	}

	var b strings.Builder
	for i, u := range units {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(Marker(u.Name))
		b.WriteString("\n")
		b.WriteString(u.Content)
		if !strings.HasSuffix(u.Content, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), manifest, nil
}

// Attribute maps a 1-based line number in an aggregated blob back to the
// contributing unit and the 1-based line within it. For blobs without markers
// (single-unit aggregation) the unit name is empty and the line is returned
// unchanged.
func Attribute(code string, line int) (unit string, localLine int) {
	if line < 1 {
		return "", line
	}
	lines := strings.Split(code, "\n")
	if line > len(lines) {
		line = len(lines)
	}

	localLine = line
	for i := line - 1; i >= 0; i-- {
		if name, ok := parseMarker(lines[i]); ok {
			return name, line - i - 1
		}
	}
	return "", line
}
