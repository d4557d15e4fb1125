package procfs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// mapsLineRegex matches one line of /proc/<pid>/maps: address range,
// permissions, file offset, device, inode and an optional pathname.
var mapsLineRegex = regexp.MustCompile(`^([0-9a-f]+)-([0-9a-f]+)\s([rwxps-]{4})\s[0-9a-f]+\s[0-9a-f]+:[0-9a-f]+\s\d+\s*(.*)$`)

var errMappingInvalid = errors.New("maps line invalid")

// mapping is one parsed line of a maps file.
type mapping struct {
	start uint64
	end   uint64
	perms string
	path  string
}

func parseMapping(line string) (mapping, error) {
	res := mapsLineRegex.FindStringSubmatch(line)
	if len(res) != 5 {
		return mapping{}, fmt.Errorf("%w: %q", errMappingInvalid, line)
	}
	start, err := strconv.ParseUint(res[1], 16, 64)
	if err != nil {
		return mapping{}, fmt.Errorf("parse start address %q: %w", res[1], err)
	}
	end, err := strconv.ParseUint(res[2], 16, 64)
	if err != nil {
		return mapping{}, fmt.Errorf("parse end address %q: %w", res[2], err)
	}
	return mapping{start: start, end: end, perms: res[3], path: res[4]}, nil
}

// readMappings parses a maps file. Lines the regex does not match are
// skipped rather than failing the read.
func readMappings(path string) ([]mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var mappings []mapping
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		m, err := parseMapping(line)
		if errors.Is(err, errMappingInvalid) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("parse maps line: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mappings, nil
}
