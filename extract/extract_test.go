package extract_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerowindow/rawntfs/bootsect"
	"github.com/zerowindow/rawntfs/device"
	"github.com/zerowindow/rawntfs/extract"
	"github.com/zerowindow/rawntfs/fragment"
	"github.com/zerowindow/rawntfs/mbr"
	"github.com/zerowindow/rawntfs/mft"
	"github.com/zerowindow/rawntfs/scan"
)

// Test volume geometry: 512-byte sectors, 4 sectors per cluster, partition at sector 128, MFT at cluster 10.
// $MFT has two runs: 2 clusters at LCN 10 (which contain record 0 itself) and 1 cluster at LCN 20.
const (
	bytesPerCluster = 2048
	partStart       = 128 * 512
	mftOffset       = partStart + 10*bytesPerCluster
	run2Offset      = partStart + 20*bytesPerCluster
	deviceSize      = run2Offset + bytesPerCluster
)

func encodeFileNameContent(name string) []byte {
	b := make([]byte, 66+2*len(name))
	b[0x40] = byte(len(name))
	for i, r := range name {
		binary.LittleEndian.PutUint16(b[0x42+2*i:], uint16(r))
	}
	return b
}

func fileNameAttr(name string) []byte {
	content := encodeFileNameContent(name)
	full := 24 + len(content)
	b := make([]byte, full)
	binary.LittleEndian.PutUint32(b, uint32(mft.AttributeTypeFileName))
	binary.LittleEndian.PutUint32(b[0x04:], uint32(full))
	binary.LittleEndian.PutUint32(b[0x10:], uint32(len(content)))
	binary.LittleEndian.PutUint16(b[0x14:], 24)
	copy(b[24:], content)
	return b
}

func dataAttr(runs mft.RunList, allocated, real uint64) []byte {
	runData := runs.Encode()
	full := 64 + len(runData)
	b := make([]byte, full)
	binary.LittleEndian.PutUint32(b, uint32(mft.AttributeTypeData))
	binary.LittleEndian.PutUint32(b[0x04:], uint32(full))
	b[0x08] = 1 // non-resident
	binary.LittleEndian.PutUint16(b[0x20:], 64)
	binary.LittleEndian.PutUint64(b[0x28:], allocated)
	binary.LittleEndian.PutUint64(b[0x30:], real)
	binary.LittleEndian.PutUint64(b[0x38:], real)
	copy(b[64:], runData)
	return b
}

func fileRecord(recordNumber uint32, flags mft.RecordFlag, attrs ...[]byte) []byte {
	record := make([]byte, mft.RecordSize)
	cursor := 56
	for _, a := range attrs {
		copy(record[cursor:], a)
		cursor += len(a)
	}
	binary.LittleEndian.PutUint32(record[cursor:], uint32(mft.AttributeTypeTerminator))
	h := mft.RecordHeader{
		Signature:            []byte{'F', 'I', 'L', 'E'},
		FirstAttributeOffset: 56,
		Flags:                flags,
		UsedSize:             uint32(cursor + 8),
		AllocatedSize:        mft.RecordSize,
		RecordNumber:         recordNumber,
	}
	copy(record, h.Encode())
	return record
}

func buildDevice(t *testing.T, mftName string) []byte {
	t.Helper()
	dev := make([]byte, deviceSize)

	boot := bootsect.BootSector{
		OemId:                 "NTFS    ",
		BytesPerSector:        512,
		SectorsPerCluster:     4,
		MftClusterNumber:      10,
		FileRecordSegmentSize: bootsect.EncodedSize(-10),
		IndexBufferSize:       bootsect.EncodedSize(-12),
	}
	copy(dev[partStart:], boot.Encode())

	runs := mft.RunList{
		{LengthClusters: 2, OffsetClusters: 10},
		{LengthClusters: 1, OffsetClusters: 10},
	}
	// 4096 bytes at LCN 10, 2048 at LCN 20: 6144 allocated for 5000 real bytes.
	record0 := fileRecord(0, mft.RecordFlagInUse, fileNameAttr(mftName), dataAttr(runs, 6144, 5000))

	copy(dev[mftOffset:], record0)
	copy(dev[mftOffset+1024:], fileRecord(1, mft.RecordFlagInUse, fileNameAttr("hello.txt")))
	copy(dev[mftOffset+2048:], fileRecord(2, mft.RecordFlagInUse|mft.RecordFlagIsDirectory, fileNameAttr("Windows")))
	copy(dev[mftOffset+3072:], fileRecord(3, 0, fileNameAttr("old.log")))
	copy(dev[run2Offset:], fileRecord(20, mft.RecordFlagInUse, fileNameAttr("pagefile.sys")))
	copy(dev[run2Offset+1024:], fileRecord(21, mft.RecordFlagInUse))
	return dev
}

func TestExtractWritesMarkerPrefixedExtents(t *testing.T) {
	dev := buildDevice(t, "$MFT")
	sess := device.New(bytes.NewReader(dev))
	_, err := sess.SeekAbs(512)
	require.Nil(t, err)

	fs := afero.NewMemMapFs()
	part := mbr.PartitionEntry{Type: mbr.TypeNTFS, RelativeSector: 128, TotalSectors: (deviceSize - partStart) / 512}

	report, err := extract.MFT(sess, part, fs, "$MFT0.data")
	require.Nilf(t, err, "extraction failed: %v", err)

	assert.Equal(t, 2, report.Fragments)
	assert.Equal(t, int64(6144), report.Bytes)
	assert.Equal(t, uint64(5000), report.RealSize)

	// The extent bytes written equal the real size rounded up to a whole number of clusters.
	rounded := (report.RealSize + bytesPerCluster - 1) / bytesPerCluster * bytesPerCluster
	assert.Equal(t, int64(rounded), report.Bytes)

	// The device cursor is back where it was before extraction.
	assert.Equal(t, int64(512), sess.Offset())

	out, err := afero.ReadFile(fs, "$MFT0.data")
	require.Nil(t, err)
	require.Len(t, out, 2*fragment.SlotSize+6144)

	first, err := fragment.DecodeMarker(out)
	require.Nil(t, err)
	assert.Equal(t, uint64(mftOffset), first.DeviceOffset)
	assert.Zero(t, first.DeviceOffset%bytesPerCluster)
	assert.Equal(t, dev[mftOffset:mftOffset+4096], out[fragment.SlotSize:fragment.SlotSize+4096])

	second, err := fragment.DecodeMarker(out[fragment.SlotSize+4096:])
	require.Nil(t, err)
	assert.Equal(t, uint64(run2Offset), second.DeviceOffset)
	assert.Zero(t, second.DeviceOffset%bytesPerCluster)
	assert.Equal(t, dev[run2Offset:run2Offset+2048], out[2*fragment.SlotSize+4096:])
}

func TestExtractThenScan(t *testing.T) {
	dev := buildDevice(t, "$MFT")
	sess := device.New(bytes.NewReader(dev))
	fs := afero.NewMemMapFs()
	part := mbr.PartitionEntry{Type: mbr.TypeNTFS, RelativeSector: 128, TotalSectors: (deviceSize - partStart) / 512}

	_, err := extract.MFT(sess, part, fs, "$MFT0.data")
	require.Nil(t, err)

	out, err := afero.ReadFile(fs, "$MFT0.data")
	require.Nil(t, err)

	files, counters, err := scan.MFT(bytes.NewReader(out))
	require.Nilf(t, err, "scan failed: %v", err)

	assert.Equal(t, 6, counters.Records)
	assert.Equal(t, 4, counters.Files)
	assert.Equal(t, 1, counters.Directories)
	assert.Equal(t, 1, counters.Deleted)
	assert.Equal(t, 0, counters.Other)
	assert.Equal(t, 2, counters.Fragments)
	assert.Equal(t, 5, counters.FileNames)
	require.Equal(t, 6, files.Len())

	entries := files.Entries()
	assert.Equal(t, "$MFT", entries[0].Name)
	assert.Equal(t, uint64(mftOffset), entries[0].FragmentOffset)
	assert.Equal(t, "pagefile.sys", entries[4].Name)
	assert.Equal(t, uint64(run2Offset), entries[4].FragmentOffset)
	assert.Equal(t, "", entries[5].Name)
	assert.Equal(t, uint32(21), entries[5].RecordNumber)
}

func TestExtractRejectsRecordZeroWithForeignName(t *testing.T) {
	dev := buildDevice(t, "$Foo")
	sess := device.New(bytes.NewReader(dev))
	part := mbr.PartitionEntry{Type: mbr.TypeNTFS, RelativeSector: 128, TotalSectors: 1024}

	_, err := extract.MFT(sess, part, afero.NewMemMapFs(), "$MFT0.data")
	require.Error(t, err)
	assert.True(t, errors.Is(err, extract.ErrNotMftRecord))
}

func TestExtractRejectsBadBootSector(t *testing.T) {
	dev := buildDevice(t, "$MFT")
	binary.LittleEndian.PutUint16(dev[partStart+0x0B:], 100) // not a power of two

	sess := device.New(bytes.NewReader(dev))
	part := mbr.PartitionEntry{Type: mbr.TypeNTFS, RelativeSector: 128, TotalSectors: 1024}

	_, err := extract.MFT(sess, part, afero.NewMemMapFs(), "$MFT0.data")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bootsect.ErrInvalid))
}

func TestExtractRejectsMftOffsetBeyondDevice(t *testing.T) {
	dev := buildDevice(t, "$MFT")
	binary.LittleEndian.PutUint64(dev[partStart+0x30:], 1<<40)

	sess := device.New(bytes.NewReader(dev))
	part := mbr.PartitionEntry{Type: mbr.TypeNTFS, RelativeSector: 128, TotalSectors: 1024}

	_, err := extract.MFT(sess, part, afero.NewMemMapFs(), "$MFT0.data")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bootsect.ErrInvalid))
}

func TestExtractRestoresOffsetOnError(t *testing.T) {
	dev := buildDevice(t, "$Foo")
	sess := device.New(bytes.NewReader(dev))
	_, err := sess.SeekAbs(77)
	require.Nil(t, err)
	part := mbr.PartitionEntry{Type: mbr.TypeNTFS, RelativeSector: 128, TotalSectors: 1024}

	_, err = extract.MFT(sess, part, afero.NewMemMapFs(), "$MFT0.data")
	require.Error(t, err)
	assert.Equal(t, int64(77), sess.Offset())
}
