package gpt

import (
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
)

// Render writes the partition table structures for an image of imageSize
// bytes starting at the given byte offset: MBR at sector 0, primary header
// at sector 1, primary entry array right after it, and the secondary array
// and header at the image tail.
func Render(w io.WriterAt, offset int64, placed []Placed, imageSize int64, opts Options) error {
	opts = opts.withDefaults()
	sector := opts.SectorSize
	totalSectors := imageSize / sector
	arraySectors := entryArraySectors(sector)

	minSectors := 2*(1+arraySectors) + 1
	if totalSectors < minSectors {
		return layoutErrorf("image of %d sectors can't hold a partition table", totalSectors)
	}

	var mbr []byte
	var err error
	if opts.HybridMBR {
		mbr, err = hybridMBR(placed, sector)
		if err != nil {
			return err
		}
	} else {
		mbr = protectiveMBR(totalSectors, sector)
	}

	array := marshalEntries(placed, sector)
	primary, secondary := buildHeaders(array, totalSectors, opts)

	slog.Debug("rendering partition table",
		"partitions", len(placed), "sectors", totalSectors, "disk_guid", opts.DiskGUID)

	writes := []struct {
		data []byte
		lba  int64
	}{
		{mbr, 0},
		{primary.marshal(sector), 1},
		{array, 2},
		{array, int64(secondary.PartitionEntriesLBA)},
		{secondary.marshal(sector), totalSectors - 1},
	}
	for _, wr := range writes {
		if _, err := w.WriteAt(wr.data, offset+wr.lba*sector); err != nil {
			return fmt.Errorf("failed to write partition table at LBA %d: %w", wr.lba, err)
		}
	}
	return nil
}

// buildHeaders creates the primary and secondary headers for an entry array.
// The two headers describe the same array content from opposite ends of the
// disk and reference each other.
func buildHeaders(array []byte, totalSectors int64, opts Options) (Header, Header) {
	arraySectors := entryArraySectors(opts.SectorSize)
	arrayCRC := crc32.ChecksumIEEE(array)

	primary := Header{
		Revision:                 revision,
		HeaderSize:               HeaderSize,
		CurrentLBA:               1,
		BackupLBA:                uint64(totalSectors - 1),
		FirstUsableLBA:           uint64(2 + arraySectors),
		LastUsableLBA:            uint64(totalSectors - 2 - arraySectors),
		DiskGUID:                 opts.DiskGUID,
		PartitionEntriesLBA:      2,
		NumberOfPartitionEntries: NumEntries,
		SizeOfPartitionEntry:     EntrySize,
		PartitionEntriesCRC32:    arrayCRC,
	}
	copy(primary.Signature[:], signature)

	secondary := primary
	secondary.CurrentLBA = primary.BackupLBA
	secondary.BackupLBA = primary.CurrentLBA
	secondary.PartitionEntriesLBA = uint64(totalSectors - 1 - arraySectors)
	return primary, secondary
}
