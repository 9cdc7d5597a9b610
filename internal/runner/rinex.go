package runner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/signalsfoundry/gnss-arcs/model"
)

// ErrSignalMismatch is returned when a RINEX header lacks a requested
// observation type.
var ErrSignalMismatch = errors.New("signal type mismatch")

const (
	labelObsTypes    = "SYS / # / OBS TYPES"
	labelEndOfHeader = "END OF HEADER"
	labelColumn      = 60
)

// ReadObsTypes returns the observation codes per constellation declared by
// the "SYS / # / OBS TYPES" records of a RINEX 3 header.
func ReadObsTypes(r io.Reader) (map[model.Constellation][]string, error) {
	types := make(map[model.Constellation][]string)
	sc := bufio.NewScanner(r)
	var cur model.Constellation
	remaining := 0
	for sc.Scan() {
		line := sc.Text()
		if len(line) < labelColumn {
			continue
		}
		label := strings.TrimSpace(line[labelColumn:])
		if label == labelEndOfHeader {
			return types, nil
		}
		if label != labelObsTypes {
			continue
		}
		body := line[:labelColumn]
		if body[0] != ' ' {
			sys, err := model.ParseConstellation(body[:1])
			if err != nil {
				return nil, fmt.Errorf("obs types record: %w", err)
			}
			n, err := strconv.Atoi(strings.TrimSpace(body[1:6]))
			if err != nil {
				return nil, fmt.Errorf("obs types count %q: %w", body[1:6], err)
			}
			cur, remaining = sys, n
		} else if remaining == 0 {
			return nil, fmt.Errorf("obs types continuation without a system record")
		}
		for _, code := range strings.Fields(body[6:]) {
			if remaining == 0 {
				break
			}
			types[cur] = append(types[cur], code)
			remaining--
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return types, nil
}

// CheckObsTypes fails with ErrSignalMismatch when any requested code is not
// declared for its constellation.
func CheckObsTypes(r io.Reader, want map[model.Constellation][]string) error {
	have, err := ReadObsTypes(r)
	if err != nil {
		return err
	}
	var missing []string
	for _, sys := range model.AllConstellations {
		for _, code := range want[sys] {
			if !slices.Contains(have[sys], code) {
				missing = append(missing, sys.Letter()+":"+code)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrSignalMismatch, strings.Join(missing, ", "))
	}
	return nil
}

// CheckObsTypesFile is CheckObsTypes on a file.
func CheckObsTypesFile(path string, want map[model.Constellation][]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := CheckObsTypes(f, want); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
