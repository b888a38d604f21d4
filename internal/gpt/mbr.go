package gpt

import (
	"encoding/binary"
	"log/slog"
)

const (
	mbrEntryOffset   = 446
	mbrEntrySize     = 16
	mbrTypeGPT       = 0xEE
	mbrBootSig0      = 0x55
	mbrBootSig1      = 0xAA
	mbrMaxSizeLBA    = 0xFFFFFFFF
	hybridMaxEntries = 3
)

func putMBREntry(entry []byte, boot, ptype byte, startLBA, sizeLBA uint64) {
	if startLBA > mbrMaxSizeLBA {
		startLBA = mbrMaxSizeLBA
	}
	if sizeLBA > mbrMaxSizeLBA {
		sizeLBA = mbrMaxSizeLBA
	}
	entry[0] = boot
	// CHS addresses are legacy; tools use the LBA fields. Standard filler
	// values keep old BIOSes from rejecting the record.
	entry[1], entry[2], entry[3] = 0x00, 0x02, 0x00
	entry[4] = ptype
	entry[5], entry[6], entry[7] = 0xFF, 0xFF, 0xFF
	binary.LittleEndian.PutUint32(entry[8:12], uint32(startLBA))
	binary.LittleEndian.PutUint32(entry[12:16], uint32(sizeLBA))
}

// protectiveMBR builds the MBR sector with a single 0xEE partition covering
// the whole disk, so that GPT-unaware tools leave the image alone.
func protectiveMBR(totalSectors int64, sectorSize int64) []byte {
	buf := make([]byte, sectorSize)
	putMBREntry(buf[mbrEntryOffset:mbrEntryOffset+mbrEntrySize],
		0x00, mbrTypeGPT, 1, uint64(totalSectors-1))
	buf[510] = mbrBootSig0
	buf[511] = mbrBootSig1
	return buf
}

// hybridMBR builds an MBR that mirrors up to three real partitions for
// bootloaders that require legacy entries, plus a protective entry covering
// the GPT structures. Requires 512-byte sectors; the MBR format has no room
// for anything else.
func hybridMBR(placed []Placed, sectorSize int64) ([]byte, error) {
	if sectorSize != DefaultSectorSize {
		return nil, layoutErrorf("hybrid MBR requires %d-byte sectors, got %d",
			DefaultSectorSize, sectorSize)
	}
	mirrored := placed
	if len(mirrored) > hybridMaxEntries {
		slog.Warn("hybrid MBR can mirror only the first partitions",
			"mirrored", hybridMaxEntries, "requested", len(placed))
		mirrored = mirrored[:hybridMaxEntries]
	}

	buf := make([]byte, sectorSize)
	// Entry 1 protects the GPT header and array region before the first
	// mirrored partition.
	firstStart := uint64(mirrored[0].Start) / uint64(sectorSize)
	putMBREntry(buf[mbrEntryOffset:mbrEntryOffset+mbrEntrySize],
		0x00, mbrTypeGPT, 1, firstStart-1)
	for i, part := range mirrored {
		entry := buf[mbrEntryOffset+(i+1)*mbrEntrySize : mbrEntryOffset+(i+2)*mbrEntrySize]
		ptype := part.MBRType
		if ptype == 0 {
			ptype = 0x83 // Linux data
		}
		putMBREntry(entry, 0x00, ptype,
			uint64(part.Start)/uint64(sectorSize),
			uint64(part.Size)/uint64(sectorSize))
	}
	buf[510] = mbrBootSig0
	buf[511] = mbrBootSig1
	return buf, nil
}
