// Package sizes parses human-readable size literals used in image
// configurations ("512 MiB", "2 GB", "4096") into byte counts.
package sizes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

var unitScale = map[string]int64{
	"B":   1,
	"KB":  1000,
	"MB":  1000 * 1000,
	"GB":  1000 * 1000 * 1000,
	"TB":  1000 * 1000 * 1000 * 1000,
	"KiB": 1024,
	"MiB": 1024 * 1024,
	"GiB": 1024 * 1024 * 1024,
	"TiB": 1024 * 1024 * 1024 * 1024,
}

// Parse converts a size literal to a byte count. Accepted forms are a bare
// integer or "<integer> <unit>" with unit one of B, KB, MB, GB, TB (decimal)
// or KiB, MiB, GiB, TiB (binary). Negative sizes are rejected.
func Parse(text string) (int64, error) {
	components := strings.Split(text, " ")
	switch len(components) {
	case 1:
		return parseCount(components[0], 1)
	case 2:
		scale, ok := unitScale[components[1]]
		if !ok {
			return 0, fmt.Errorf("unknown size suffix %q", components[1])
		}
		return parseCount(components[0], scale)
	default:
		return 0, fmt.Errorf("can't parse size entry %q", text)
	}
}

func parseCount(text string, scale int64) (int64, error) {
	count, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", text)
	}
	if count < 0 {
		return 0, fmt.Errorf("negative size %q", text)
	}
	if scale > 1 && count > (1<<63-1)/scale {
		return 0, fmt.Errorf("size %q overflows", text)
	}
	return count * scale, nil
}

// HumanReadable renders a byte count in binary units for logs and error
// messages ("16 MiB").
func HumanReadable(size int64) string {
	return humanize.IBytes(uint64(size))
}
