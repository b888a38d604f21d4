package gpt

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	// DefaultSectorSize is the logical sector size assumed unless the
	// configuration overrides it.
	DefaultSectorSize = 512

	// DefaultAlignment is the partition start alignment. 1 MiB satisfies
	// common physical storage and bootloader expectations.
	DefaultAlignment = 1 * 1024 * 1024

	// DefaultReserve is the space kept after the last partition for the
	// secondary GPT header and array plus alignment slack. A safety margin,
	// not a protocol requirement.
	DefaultReserve = 16 * 1024 * 1024
)

// LayoutError reports a partition table that cannot be realized: a requested
// image size smaller than the computed layout, or MBR/sector combinations
// the format does not support.
type LayoutError struct {
	Msg string
}

func (e *LayoutError) Error() string {
	return e.Msg
}

func layoutErrorf(format string, args ...any) *LayoutError {
	return &LayoutError{Msg: fmt.Sprintf(format, args...)}
}

// Options control layout and rendering of a partition table.
type Options struct {
	SectorSize int64
	Alignment  int64
	Reserve    int64
	HybridMBR  bool
	DiskGUID   uuid.UUID
}

// withDefaults fills unset options with the package defaults.
func (o Options) withDefaults() Options {
	if o.SectorSize == 0 {
		o.SectorSize = DefaultSectorSize
	}
	if o.Alignment == 0 {
		o.Alignment = DefaultAlignment
	}
	if o.Reserve == 0 {
		o.Reserve = DefaultReserve
	}
	if o.DiskGUID == uuid.Nil {
		o.DiskGUID = uuid.New()
	}
	return o
}

// Request describes one partition before layout.
type Request struct {
	Label   string
	Type    uuid.UUID
	GUID    uuid.UUID
	Size    int64
	MBRType byte
}

// Placed is a partition with its final position assigned by Layout.
type Placed struct {
	Request
	Start int64
}

func alignUp(val, align int64) int64 {
	rem := val % align
	if rem == 0 {
		return val
	}
	return val + align - rem
}

// Layout assigns start offsets to the requested partitions and returns the
// total image size. Partitions keep their declared order; each start is
// aligned up to opts.Alignment and each size is rounded up to a whole number
// of sectors. The total accounts for the tail reserve holding the secondary
// GPT copy.
func Layout(requests []Request, opts Options) ([]Placed, int64, error) {
	opts = opts.withDefaults()
	if len(requests) == 0 {
		return nil, 0, layoutErrorf("partition table has no partitions")
	}

	// Sector 0 holds the MBR, the primary header and array follow it. The
	// first partition lands on the first aligned boundary after them.
	end := (1 + 1 + entryArraySectors(opts.SectorSize)) * opts.SectorSize
	placed := make([]Placed, 0, len(requests))
	for _, req := range requests {
		if len([]rune(req.Label)) > MaxLabelLen {
			return nil, 0, layoutErrorf("partition label %q is longer than %d characters",
				req.Label, MaxLabelLen)
		}
		if req.Size <= 0 {
			return nil, 0, layoutErrorf("partition %q has no size", req.Label)
		}
		p := Placed{Request: req}
		p.Start = alignUp(end, opts.Alignment)
		p.Size = alignUp(req.Size, opts.SectorSize)
		if p.GUID == uuid.Nil {
			p.GUID = uuid.New()
		}
		end = p.Start + p.Size
		placed = append(placed, p)
	}

	// The reserve must at least fit the secondary array and header.
	reserve := opts.Reserve
	if min := (entryArraySectors(opts.SectorSize) + 1) * opts.SectorSize; reserve < min {
		reserve = min
	}
	return placed, end + reserve, nil
}
