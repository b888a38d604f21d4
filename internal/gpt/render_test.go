package gpt

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memImage is an in-memory disk image for render/read-back tests.
type memImage []byte

func (m memImage) WriteAt(p []byte, off int64) (int, error) {
	return copy(m[off:], p), nil
}

func (m memImage) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m[off:]), nil
}

func renderedImage(t *testing.T, requests []Request, opts Options) (memImage, []Placed, int64) {
	t.Helper()
	placed, total, err := Layout(requests, opts)
	require.NoError(t, err)
	img := make(memImage, total)
	require.NoError(t, Render(img, 0, placed, total, opts))
	return img, placed, total
}

func TestRenderRoundTrip(t *testing.T) {
	diskGUID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	espGUID := uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
	opts := Options{DiskGUID: diskGUID}

	reqs := []Request{
		{Label: "boot", Type: espGUID, GUID: uuid.MustParse("AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE"), Size: 10 * mib},
		{Label: "root", Type: uuid.MustParse(GenericDataGUID), Size: 20 * mib},
	}
	img, placed, total := renderedImage(t, reqs, opts)
	totalSectors := total / DefaultSectorSize

	for _, headerLBA := range []int64{1, totalSectors - 1} {
		header, entries, err := ReadTable(img, headerLBA, DefaultSectorSize)
		require.NoError(t, err, "header at LBA %d", headerLBA)
		assert.Equal(t, diskGUID, header.DiskGUID)
		assert.Equal(t, uint32(NumEntries), header.NumberOfPartitionEntries)
		assert.Equal(t, uint32(EntrySize), header.SizeOfPartitionEntry)

		require.Len(t, entries, len(placed))
		for i, entry := range entries {
			assert.Equal(t, placed[i].Label, entry.Label)
			assert.Equal(t, placed[i].Type, entry.Type)
			assert.Equal(t, placed[i].GUID, entry.GUID)
			assert.Equal(t, placed[i].Start, entry.Start)
			assert.Equal(t, placed[i].Size, entry.Size)
		}
	}
}

func TestRenderHeadersReferenceEachOther(t *testing.T) {
	img, _, total := renderedImage(t, []Request{req("a", mib)}, Options{})
	totalSectors := total / DefaultSectorSize

	primary, _, err := ReadTable(img, 1, DefaultSectorSize)
	require.NoError(t, err)
	secondary, _, err := ReadTable(img, totalSectors-1, DefaultSectorSize)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), primary.CurrentLBA)
	assert.Equal(t, uint64(totalSectors-1), primary.BackupLBA)
	assert.Equal(t, uint64(totalSectors-1), secondary.CurrentLBA)
	assert.Equal(t, uint64(1), secondary.BackupLBA)
	assert.Equal(t, primary.FirstUsableLBA, secondary.FirstUsableLBA)
	assert.Equal(t, primary.LastUsableLBA, secondary.LastUsableLBA)
	assert.Equal(t, primary.DiskGUID, secondary.DiskGUID)

	// Usable range must exclude both GPT copies.
	arraySectors := entryArraySectors(DefaultSectorSize)
	assert.Equal(t, uint64(2+arraySectors), primary.FirstUsableLBA)
	assert.Equal(t, uint64(totalSectors-2-arraySectors), primary.LastUsableLBA)
}

func TestRenderProtectiveMBR(t *testing.T) {
	img, _, total := renderedImage(t, []Request{req("a", mib)}, Options{})

	assert.EqualValues(t, 0x55, img[510])
	assert.EqualValues(t, 0xAA, img[511])
	entry := img[446:462]
	assert.EqualValues(t, mbrTypeGPT, entry[4])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(entry[8:12]))
	assert.Equal(t, uint32(total/DefaultSectorSize-1), binary.LittleEndian.Uint32(entry[12:16]))
}

func TestRenderHybridMBR(t *testing.T) {
	reqs := []Request{
		{Label: "boot", Type: uuid.MustParse(GenericDataGUID), Size: 10 * mib, MBRType: 0x0C},
		{Label: "root", Type: uuid.MustParse(GenericDataGUID), Size: 20 * mib},
	}
	img, placed, _ := renderedImage(t, reqs, Options{HybridMBR: true})

	// Entry 1 protects the GPT area up to the first partition.
	protective := img[446:462]
	assert.EqualValues(t, mbrTypeGPT, protective[4])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(protective[8:12]))
	assert.Equal(t, uint32(placed[0].Start/DefaultSectorSize-1),
		binary.LittleEndian.Uint32(protective[12:16]))

	boot := img[462:478]
	assert.EqualValues(t, 0x0C, boot[4])
	assert.Equal(t, uint32(placed[0].Start/DefaultSectorSize),
		binary.LittleEndian.Uint32(boot[8:12]))
	assert.Equal(t, uint32(placed[0].Size/DefaultSectorSize),
		binary.LittleEndian.Uint32(boot[12:16]))

	// Unspecified MBR type falls back to Linux data.
	root := img[478:494]
	assert.EqualValues(t, 0x83, root[4])
}

func TestRenderHybridMBRTruncatesToThree(t *testing.T) {
	reqs := []Request{
		req("p1", mib), req("p2", mib), req("p3", mib), req("p4", mib),
	}
	img, _, _ := renderedImage(t, reqs, Options{HybridMBR: true})

	// Slots: protective + first three partitions; the fourth has no room.
	for slot := 1; slot < 4; slot++ {
		entry := img[446+slot*16 : 446+(slot+1)*16]
		assert.NotZero(t, entry[4], "slot %d must be populated", slot)
	}
}

func TestRenderHybridMBRSectorSize(t *testing.T) {
	opts := Options{HybridMBR: true, SectorSize: 4096}
	placed, total, err := Layout([]Request{req("a", mib)}, opts)
	require.NoError(t, err)
	img := make(memImage, total)

	err = Render(img, 0, placed, total, opts)
	var layoutErr *LayoutError
	require.ErrorAs(t, err, &layoutErr)
	assert.Contains(t, layoutErr.Error(), "sector")
}

func TestRenderAtOffset(t *testing.T) {
	// A nested image renders its table relative to its own start.
	placed, total, err := Layout([]Request{req("a", mib)}, Options{})
	require.NoError(t, err)
	const offset = 4 * mib
	img := make(memImage, offset+total)
	require.NoError(t, Render(img, offset, placed, total, Options{}))

	assert.EqualValues(t, 0x55, img[offset+510])
	assert.EqualValues(t, 0xAA, img[offset+511])
	assert.Equal(t, signature, string(img[offset+DefaultSectorSize:offset+DefaultSectorSize+8]))
	// Nothing before the offset is touched.
	assert.Equal(t, make([]byte, 512), []byte(img[:512]))
}

func TestReadTableRejectsCorruption(t *testing.T) {
	img, _, _ := renderedImage(t, []Request{req("a", mib)}, Options{})

	t.Run("BadSignature", func(t *testing.T) {
		bad := make(memImage, len(img))
		copy(bad, img)
		bad[DefaultSectorSize] ^= 0xFF
		_, _, err := ReadTable(bad, 1, DefaultSectorSize)
		assert.ErrorContains(t, err, "signature")
	})
	t.Run("BadHeaderCRC", func(t *testing.T) {
		bad := make(memImage, len(img))
		copy(bad, img)
		bad[DefaultSectorSize+40] ^= 0xFF // FirstUsableLBA
		_, _, err := ReadTable(bad, 1, DefaultSectorSize)
		assert.ErrorContains(t, err, "CRC")
	})
	t.Run("BadArrayCRC", func(t *testing.T) {
		bad := make(memImage, len(img))
		copy(bad, img)
		bad[2*DefaultSectorSize] ^= 0xFF
		_, _, err := ReadTable(bad, 1, DefaultSectorSize)
		assert.ErrorContains(t, err, "CRC")
	})
}
