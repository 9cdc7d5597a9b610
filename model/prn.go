package model

import (
	"fmt"
	"strconv"
	"strings"
)

// PRN is a letter-plus-number satellite label such as "E05".
type PRN struct {
	System Constellation
	Number int
}

// ParsePRN parses labels like "G01", "E5" or "R 7".
func ParsePRN(s string) (PRN, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return PRN{}, fmt.Errorf("invalid PRN %q", s)
	}
	sys, err := ParseConstellation(s[:1])
	if err != nil {
		return PRN{}, fmt.Errorf("invalid PRN %q: %w", s, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s[1:]))
	if err != nil || n < 1 || n > 199 {
		return PRN{}, fmt.Errorf("invalid PRN number in %q", s)
	}
	return PRN{System: sys, Number: n}, nil
}

// String formats the PRN with a two-digit number.
func (p PRN) String() string {
	return fmt.Sprintf("%s%02d", p.System.Letter(), p.Number)
}

// Less orders PRNs by system letter then number.
func (p PRN) Less(other PRN) bool {
	if p.System != other.System {
		return p.System < other.System
	}
	return p.Number < other.Number
}

// ComparePRN is a three-way comparison for slices.SortFunc.
func ComparePRN(a, b PRN) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}
