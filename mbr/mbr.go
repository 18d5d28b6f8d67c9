/*
	Package mbr provides functions to parse the DOS/MBR partition table found in the first sector of a legacy
	partitioned block device.
*/
package mbr

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zerowindow/rawntfs/binutil"
)

const (
	// SectorSize is the size of one device sector; partition offsets are expressed in these units.
	SectorSize = 512
	// TableOffset is the byte offset of the first primary partition entry within the MBR sector.
	TableOffset = 0x1BE
	// EntrySize is the on-disk size of one partition entry.
	EntrySize = 16
	// NumPrimaryPartitions is the number of partition entries in the MBR.
	NumPrimaryPartitions = 4

	// TypeNTFS is the partition type byte for NTFS partitions.
	TypeNTFS = 0x07
	// bootIndicator is the boot indicator byte marking a bootable partition.
	bootIndicator = 0x80
)

// ErrNoNTFSPartitions indicates that none of the primary partition entries carries the NTFS type byte. On raw block
// devices this commonly means the table could not be read at all for lack of privileges.
var ErrNoNTFSPartitions = errors.New("No NTFS partitions found")

// A PartitionEntry is one of the four primary partition entries of the MBR. The CHS addresses are informational only;
// all offset arithmetic uses RelativeSector.
type PartitionEntry struct {
	BootIndicator  byte
	StartCHS       [3]byte
	Type           byte
	EndCHS         [3]byte
	RelativeSector uint32
	TotalSectors   uint32
}

// DecodePartitionEntry parses one 16-byte partition table entry. The data is assumed to be in Little Endian order.
func DecodePartitionEntry(b []byte) (PartitionEntry, error) {
	if len(b) < EntrySize {
		return PartitionEntry{}, fmt.Errorf("partition entry should be %d bytes but is %d", EntrySize, len(b))
	}
	r := binutil.NewLittleEndianReader(b)
	p := PartitionEntry{
		BootIndicator:  r.Byte(0x00),
		Type:           r.Byte(0x04),
		RelativeSector: r.Uint32(0x08),
		TotalSectors:   r.Uint32(0x0C),
	}
	copy(p.StartCHS[:], r.Read(0x01, 3))
	copy(p.EndCHS[:], r.Read(0x05, 3))
	return p, nil
}

// Encode writes the entry back into its 16-byte on-disk form.
func (p PartitionEntry) Encode() []byte {
	b := make([]byte, EntrySize)
	b[0x00] = p.BootIndicator
	copy(b[0x01:], p.StartCHS[:])
	b[0x04] = p.Type
	copy(b[0x05:], p.EndCHS[:])
	binary.LittleEndian.PutUint32(b[0x08:], p.RelativeSector)
	binary.LittleEndian.PutUint32(b[0x0C:], p.TotalSectors)
	return b
}

// Empty reports whether this table slot is unused. An entry is empty if and only if its sector count is zero.
func (p PartitionEntry) Empty() bool {
	return p.TotalSectors == 0
}

// IsNTFS reports whether the entry carries the NTFS partition type.
func (p PartitionEntry) IsNTFS() bool {
	return p.Type == TypeNTFS
}

// Bootable reports whether the boot indicator marks this partition as bootable (0x80 per the MBR specification).
func (p PartitionEntry) Bootable() bool {
	return p.BootIndicator == bootIndicator
}

// StartOffsetBytes returns the absolute device byte offset at which the partition begins.
func (p PartitionEntry) StartOffsetBytes() uint64 {
	return uint64(p.RelativeSector) * SectorSize
}

// A Table holds the four primary partition entries of the MBR.
type Table struct {
	Partitions [NumPrimaryPartitions]PartitionEntry
}

// DecodeTable parses a full 512-byte MBR sector, checking the 0x55AA boot signature and decoding the four primary
// partition entries starting at offset 0x1BE.
func DecodeTable(b []byte) (Table, error) {
	if len(b) < SectorSize {
		return Table{}, fmt.Errorf("mbr sector should be %d bytes but is %d", SectorSize, len(b))
	}
	if b[510] != 0x55 || b[511] != 0xAA {
		return Table{}, fmt.Errorf("invalid mbr boot signature %#02x%02x", b[510], b[511])
	}
	var t Table
	for i := 0; i < NumPrimaryPartitions; i++ {
		entry, err := DecodePartitionEntry(b[TableOffset+i*EntrySize:])
		if err != nil {
			return Table{}, fmt.Errorf("unable to decode partition entry %d: %w", i, err)
		}
		t.Partitions[i] = entry
	}
	return t, nil
}

// NTFS returns the non-empty NTFS partition entries in table order, regardless of boot flag.
func (t Table) NTFS() []PartitionEntry {
	ret := make([]PartitionEntry, 0, NumPrimaryPartitions)
	for _, p := range t.Partitions {
		if !p.Empty() && p.IsNTFS() {
			ret = append(ret, p)
		}
	}
	return ret
}
