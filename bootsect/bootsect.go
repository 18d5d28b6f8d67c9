/*
	Package bootsect provides functions to parse the boot sector (also sometimes called Volume Boot Record, VBR, or
	$Boot file) of an NTFS volume.
*/
package bootsect

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zerowindow/rawntfs/binutil"
)

// OemIdNTFS is the OEM id carried by every NTFS boot sector ("NTFS" followed by 4 trailing spaces).
const OemIdNTFS = "NTFS    "

// ErrInvalid is wrapped by every rejection of a boot sector whose BPB fields are out of range.
var ErrInvalid = errors.New("invalid boot sector")

// An EncodedSize is the signed single-byte size encoding used for the file record segment and index buffer sizes.
// A positive value is a count of clusters; a negative value is the base-2 log of the size in bytes.
type EncodedSize int8

// ToBytes resolves the encoded size against the volume's cluster size.
func (s EncodedSize) ToBytes(bytesPerCluster int) int {
	if s < 0 {
		return 1 << -s
	}
	return int(s) * bytesPerCluster
}

// BootSector represents the parsed data of an NTFS boot sector. The OemId should typically be "NTFS    " for a valid
// NTFS boot sector.
type BootSector struct {
	OemId                  string
	BytesPerSector         int
	SectorsPerCluster      int
	MediaDescriptor        byte
	SectorsPerTrack        int
	NumberOfHeads          int
	HiddenSectors          uint32
	TotalSectors           uint64
	MftClusterNumber       uint64
	MftMirrorClusterNumber uint64
	FileRecordSegmentSize  EncodedSize
	IndexBufferSize        EncodedSize
	VolumeSerialNumber     uint64
}

// Parse parses the data of an NTFS boot sector into a BootSector structure. The bytes-per-sector field must be a
// power of two between 512 and 4096 and the cluster size must be positive; anything else wraps ErrInvalid.
func Parse(data []byte) (BootSector, error) {
	if len(data) < 80 {
		return BootSector{}, fmt.Errorf("boot sector data should be at least 80 bytes but is %d", len(data))
	}
	r := binutil.NewLittleEndianReader(data)

	bytesPerSector := int(r.Uint16(0x0B))
	if bytesPerSector < 512 || bytesPerSector > 4096 || bytesPerSector&(bytesPerSector-1) != 0 {
		return BootSector{}, fmt.Errorf("%w: bytes per sector %d is not a power of two between 512 and 4096", ErrInvalid, bytesPerSector)
	}

	sectorsPerCluster := int(int8(r.Byte(0x0D)))
	if sectorsPerCluster < 0 {
		// Negative means the amount of sectors is 2 to the power of the absolute value of this field.
		sectorsPerCluster = 1 << -sectorsPerCluster
	}
	if sectorsPerCluster == 0 || bytesPerSector*sectorsPerCluster <= 0 {
		return BootSector{}, fmt.Errorf("%w: cluster size is zero", ErrInvalid)
	}

	return BootSector{
		OemId:                  string(r.Read(0x03, 8)),
		BytesPerSector:         bytesPerSector,
		SectorsPerCluster:      sectorsPerCluster,
		MediaDescriptor:        r.Byte(0x15),
		SectorsPerTrack:        int(r.Uint16(0x18)),
		NumberOfHeads:          int(r.Uint16(0x1A)),
		HiddenSectors:          r.Uint32(0x1C),
		TotalSectors:           r.Uint64(0x28),
		MftClusterNumber:       r.Uint64(0x30),
		MftMirrorClusterNumber: r.Uint64(0x38),
		FileRecordSegmentSize:  EncodedSize(r.Byte(0x40)),
		IndexBufferSize:        EncodedSize(r.Byte(0x44)),
		VolumeSerialNumber:     r.Uint64(0x48),
	}, nil
}

// BytesPerCluster returns the volume's cluster size in bytes.
func (b BootSector) BytesPerCluster() int {
	return b.BytesPerSector * b.SectorsPerCluster
}

// Encode writes the boot sector fields back into a full 512-byte sector at their on-disk offsets, with the 0x55AA
// end marker set. Code and reserved areas are zero.
func (b BootSector) Encode() []byte {
	data := make([]byte, 512)
	oem := b.OemId
	if len(oem) > 8 {
		oem = oem[:8]
	}
	copy(data[0x03:], oem)
	binary.LittleEndian.PutUint16(data[0x0B:], uint16(b.BytesPerSector))
	data[0x0D] = byte(int8(b.SectorsPerCluster))
	data[0x15] = b.MediaDescriptor
	binary.LittleEndian.PutUint16(data[0x18:], uint16(b.SectorsPerTrack))
	binary.LittleEndian.PutUint16(data[0x1A:], uint16(b.NumberOfHeads))
	binary.LittleEndian.PutUint32(data[0x1C:], b.HiddenSectors)
	binary.LittleEndian.PutUint64(data[0x28:], b.TotalSectors)
	binary.LittleEndian.PutUint64(data[0x30:], b.MftClusterNumber)
	binary.LittleEndian.PutUint64(data[0x38:], b.MftMirrorClusterNumber)
	data[0x40] = byte(b.FileRecordSegmentSize)
	data[0x44] = byte(b.IndexBufferSize)
	binary.LittleEndian.PutUint64(data[0x48:], b.VolumeSerialNumber)
	data[510] = 0x55
	data[511] = 0xAA
	return data
}
