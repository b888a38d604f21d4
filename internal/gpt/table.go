// Package gpt computes partition layouts and produces the on-disk GUID
// Partition Table structures: protective or hybrid MBR, primary and
// secondary headers and partition entry arrays. The wire format follows the
// UEFI specification; headers are protected by CRC32 so that the produced
// images are accepted by standard partition tools and bootloaders.
package gpt

import (
	"encoding/binary"
	"hash/crc32"
	"unicode/utf16"

	"github.com/google/uuid"
)

const (
	// HeaderSize is the byte size of a GPT header.
	HeaderSize = 92

	// EntrySize is the byte size of one partition entry.
	EntrySize = 128

	// NumEntries is the number of slots in the partition entry array.
	NumEntries = 128

	// MaxLabelLen is the longest partition name the entry format can hold
	// (36 UTF-16 code units).
	MaxLabelLen = 36

	signature = "EFI PART"
	revision  = 0x00010000
)

// Header mirrors the on-disk GPT header.
type Header struct {
	Signature                [8]byte
	Revision                 uint32
	HeaderSize               uint32
	HeaderCRC32              uint32
	Reserved                 uint32
	CurrentLBA               uint64
	BackupLBA                uint64
	FirstUsableLBA           uint64
	LastUsableLBA            uint64
	DiskGUID                 uuid.UUID
	PartitionEntriesLBA      uint64
	NumberOfPartitionEntries uint32
	SizeOfPartitionEntry     uint32
	PartitionEntriesCRC32    uint32
}

func (h *Header) marshal(sectorSize int64) []byte {
	buf := make([]byte, sectorSize)
	copy(buf[0:8], h.Signature[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Revision)
	binary.LittleEndian.PutUint32(buf[12:16], h.HeaderSize)
	// CRC field is computed over the header with this field zeroed.
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], h.Reserved)
	binary.LittleEndian.PutUint64(buf[24:32], h.CurrentLBA)
	binary.LittleEndian.PutUint64(buf[32:40], h.BackupLBA)
	binary.LittleEndian.PutUint64(buf[40:48], h.FirstUsableLBA)
	binary.LittleEndian.PutUint64(buf[48:56], h.LastUsableLBA)
	guid := guidBytes(h.DiskGUID)
	copy(buf[56:72], guid[:])
	binary.LittleEndian.PutUint64(buf[72:80], h.PartitionEntriesLBA)
	binary.LittleEndian.PutUint32(buf[80:84], h.NumberOfPartitionEntries)
	binary.LittleEndian.PutUint32(buf[84:88], h.SizeOfPartitionEntry)
	binary.LittleEndian.PutUint32(buf[88:92], h.PartitionEntriesCRC32)

	h.HeaderCRC32 = crc32.ChecksumIEEE(buf[:HeaderSize])
	binary.LittleEndian.PutUint32(buf[16:20], h.HeaderCRC32)
	return buf
}

func parseHeader(data []byte) Header {
	var h Header
	copy(h.Signature[:], data[0:8])
	h.Revision = binary.LittleEndian.Uint32(data[8:12])
	h.HeaderSize = binary.LittleEndian.Uint32(data[12:16])
	h.HeaderCRC32 = binary.LittleEndian.Uint32(data[16:20])
	h.Reserved = binary.LittleEndian.Uint32(data[20:24])
	h.CurrentLBA = binary.LittleEndian.Uint64(data[24:32])
	h.BackupLBA = binary.LittleEndian.Uint64(data[32:40])
	h.FirstUsableLBA = binary.LittleEndian.Uint64(data[40:48])
	h.LastUsableLBA = binary.LittleEndian.Uint64(data[48:56])
	h.DiskGUID = guidFromBytes(data[56:72])
	h.PartitionEntriesLBA = binary.LittleEndian.Uint64(data[72:80])
	h.NumberOfPartitionEntries = binary.LittleEndian.Uint32(data[80:84])
	h.SizeOfPartitionEntry = binary.LittleEndian.Uint32(data[84:88])
	h.PartitionEntriesCRC32 = binary.LittleEndian.Uint32(data[88:92])
	return h
}

// marshalEntries builds the full partition entry array. Unused slots stay
// zero, which marks them as empty per the UEFI specification.
func marshalEntries(placed []Placed, sectorSize int64) []byte {
	buf := make([]byte, NumEntries*EntrySize)
	for i, part := range placed {
		entry := buf[i*EntrySize : (i+1)*EntrySize]
		typeGUID := guidBytes(part.Type)
		copy(entry[0:16], typeGUID[:])
		partGUID := guidBytes(part.GUID)
		copy(entry[16:32], partGUID[:])
		startLBA := uint64(part.Start / sectorSize)
		endLBA := uint64((part.Start+part.Size)/sectorSize) - 1
		binary.LittleEndian.PutUint64(entry[32:40], startLBA)
		binary.LittleEndian.PutUint64(entry[40:48], endLBA)
		binary.LittleEndian.PutUint64(entry[48:56], 0) // attributes
		encodeLabel(entry[56:128], part.Label)
	}
	return buf
}

// encodeLabel writes a partition name as UTF-16LE, NUL padded.
func encodeLabel(dst []byte, label string) {
	units := utf16.Encode([]rune(label))
	if len(units) > MaxLabelLen {
		units = units[:MaxLabelLen]
	}
	for i, u := range units {
		binary.LittleEndian.PutUint16(dst[i*2:i*2+2], u)
	}
}

// decodeLabel is the inverse of encodeLabel.
func decodeLabel(src []byte) string {
	var units []uint16
	for i := 0; i+1 < len(src); i += 2 {
		u := binary.LittleEndian.Uint16(src[i : i+2])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// entryArraySectors returns how many sectors the partition entry array
// occupies for the given sector size.
func entryArraySectors(sectorSize int64) int64 {
	arrayBytes := int64(NumEntries * EntrySize)
	return (arrayBytes + sectorSize - 1) / sectorSize
}
