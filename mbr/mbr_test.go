package mbr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerowindow/rawntfs/mbr"
)

func sectorWith(t *testing.T, entries ...mbr.PartitionEntry) []byte {
	t.Helper()
	require.LessOrEqual(t, len(entries), mbr.NumPrimaryPartitions)
	b := make([]byte, mbr.SectorSize)
	for i, e := range entries {
		copy(b[mbr.TableOffset+i*mbr.EntrySize:], e.Encode())
	}
	b[510] = 0x55
	b[511] = 0xAA
	return b
}

func TestDecodeTableSingleNTFSPartition(t *testing.T) {
	ntfs := mbr.PartitionEntry{
		BootIndicator:  0x80,
		Type:           mbr.TypeNTFS,
		RelativeSector: 2048,
		TotalSectors:   209715200,
	}
	sector := sectorWith(t, mbr.PartitionEntry{}, mbr.PartitionEntry{}, ntfs, mbr.PartitionEntry{})

	table, err := mbr.DecodeTable(sector)
	require.Nilf(t, err, "could not decode table: %v", err)

	found := table.NTFS()
	require.Len(t, found, 1)
	assert.Equal(t, ntfs, found[0])
	assert.True(t, found[0].Bootable())
	assert.Equal(t, uint64(2048*512), found[0].StartOffsetBytes())
}

func TestDecodeTableNoNTFSPartitions(t *testing.T) {
	sector := sectorWith(t, mbr.PartitionEntry{Type: 0x83, RelativeSector: 2048, TotalSectors: 1024})

	table, err := mbr.DecodeTable(sector)
	require.Nilf(t, err, "could not decode table: %v", err)
	assert.Empty(t, table.NTFS())
}

func TestDecodeTableBadSignature(t *testing.T) {
	sector := make([]byte, mbr.SectorSize)
	_, err := mbr.DecodeTable(sector)
	assert.Error(t, err)
}

func TestDecodeTableShortInput(t *testing.T) {
	_, err := mbr.DecodeTable(make([]byte, 100))
	assert.Error(t, err)
}

func TestPartitionEntryRoundTrip(t *testing.T) {
	raw := []byte{0x80, 0x20, 0x21, 0x00, 0x07, 0xFE, 0xFF, 0xFF, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x80, 0x0C}
	entry, err := mbr.DecodePartitionEntry(raw)
	require.Nilf(t, err, "could not decode entry: %v", err)
	assert.Equal(t, raw, entry.Encode())
}

func TestPartitionEntryEmpty(t *testing.T) {
	entry := mbr.PartitionEntry{Type: mbr.TypeNTFS, RelativeSector: 2048}
	assert.True(t, entry.Empty())
	entry.TotalSectors = 1
	assert.False(t, entry.Empty())
}

func TestPartitionEntryNonStandardBootIndicatorIsNotBootable(t *testing.T) {
	entry := mbr.PartitionEntry{BootIndicator: 0x08, Type: mbr.TypeNTFS, TotalSectors: 1}
	assert.False(t, entry.Bootable())
}
