package gpt

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/google/uuid"
)

// TableEntry is a decoded partition entry from an existing image.
type TableEntry struct {
	Label string
	Type  uuid.UUID
	GUID  uuid.UUID
	Start int64
	Size  int64
}

// ReadTable reads and validates a GPT header and its partition entry array
// at the given header LBA. It checks the signature and both CRCs, so a
// successful read proves the structures are well formed.
func ReadTable(r io.ReaderAt, headerLBA int64, sectorSize int64) (Header, []TableEntry, error) {
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}
	raw := make([]byte, sectorSize)
	if _, err := r.ReadAt(raw, headerLBA*sectorSize); err != nil {
		return Header{}, nil, fmt.Errorf("failed to read GPT header at LBA %d: %w", headerLBA, err)
	}
	if string(raw[:8]) != signature {
		return Header{}, nil, fmt.Errorf("invalid GPT signature %q at LBA %d", raw[:8], headerLBA)
	}
	header := parseHeader(raw)

	binary.LittleEndian.PutUint32(raw[16:20], 0)
	if sum := crc32.ChecksumIEEE(raw[:HeaderSize]); sum != header.HeaderCRC32 {
		return Header{}, nil, fmt.Errorf("GPT header CRC mismatch: got 0x%08X, want 0x%08X",
			header.HeaderCRC32, sum)
	}

	arrayBytes := int64(header.NumberOfPartitionEntries) * int64(header.SizeOfPartitionEntry)
	array := make([]byte, arrayBytes)
	if _, err := r.ReadAt(array, int64(header.PartitionEntriesLBA)*sectorSize); err != nil {
		return Header{}, nil, fmt.Errorf("failed to read partition entry array: %w", err)
	}
	if sum := crc32.ChecksumIEEE(array); sum != header.PartitionEntriesCRC32 {
		return Header{}, nil, fmt.Errorf("partition array CRC mismatch: got 0x%08X, want 0x%08X",
			header.PartitionEntriesCRC32, sum)
	}

	var entries []TableEntry
	for i := uint32(0); i < header.NumberOfPartitionEntries; i++ {
		data := array[int64(i)*int64(header.SizeOfPartitionEntry):]
		typeGUID := guidFromBytes(data[0:16])
		if typeGUID == uuid.Nil {
			continue
		}
		startLBA := binary.LittleEndian.Uint64(data[32:40])
		endLBA := binary.LittleEndian.Uint64(data[40:48])
		entries = append(entries, TableEntry{
			Label: decodeLabel(data[56:128]),
			Type:  typeGUID,
			GUID:  guidFromBytes(data[16:32]),
			Start: int64(startLBA) * sectorSize,
			Size:  int64(endLBA-startLBA+1) * sectorSize,
		})
	}
	return header, entries, nil
}
