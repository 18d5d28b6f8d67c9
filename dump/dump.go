// Package dump renders the decoded on-disk structures as ordered dictionaries for diagnostic output. Field order
// follows the on-disk layout.
package dump

import (
	"fmt"
	"io"

	"github.com/Velocidex/ordereddict"

	"github.com/zerowindow/rawntfs/bootsect"
	"github.com/zerowindow/rawntfs/mbr"
	"github.com/zerowindow/rawntfs/mft"
)

// PartitionEntry renders one MBR partition entry.
func PartitionEntry(p mbr.PartitionEntry) *ordereddict.Dict {
	d := ordereddict.NewDict()
	if p.Empty() {
		return d.Set("empty", true)
	}
	partType := "Other"
	if p.IsNTFS() {
		partType = "NTFS"
	}
	return d.
		Set("bootable", p.Bootable()).
		Set("type", partType).
		Set("start CHS", fmt.Sprintf("%d/%d/%d", p.StartCHS[0], p.StartCHS[1], p.StartCHS[2])).
		Set("end CHS", fmt.Sprintf("%d/%d/%d", p.EndCHS[0], p.EndCHS[1], p.EndCHS[2])).
		Set("relative sector", p.RelativeSector).
		Set("total sectors", p.TotalSectors).
		Set("size", fmt.Sprintf("%0.2f GB", float64(p.TotalSectors)/2097152.0))
}

// BootSector renders a parsed NTFS boot sector.
func BootSector(b bootsect.BootSector) *ordereddict.Dict {
	bytesPerCluster := b.BytesPerCluster()
	return ordereddict.NewDict().
		Set("OEM id", b.OemId).
		Set("bytes per sector", b.BytesPerSector).
		Set("sectors per cluster", b.SectorsPerCluster).
		Set("media descriptor", fmt.Sprintf("%#02x", b.MediaDescriptor)).
		Set("sectors per track", b.SectorsPerTrack).
		Set("number of heads", b.NumberOfHeads).
		Set("hidden sectors", b.HiddenSectors).
		Set("total sectors", b.TotalSectors).
		Set("MFT cluster number", b.MftClusterNumber).
		Set("MFT mirror cluster number", b.MftMirrorClusterNumber).
		Set("MFT record size", b.FileRecordSegmentSize.ToBytes(bytesPerCluster)).
		Set("index block size", b.IndexBufferSize.ToBytes(bytesPerCluster)).
		Set("volume serial number", fmt.Sprintf("%#016x", b.VolumeSerialNumber))
}

// RecordHeader renders the header of an MFT FILE record.
func RecordHeader(h mft.RecordHeader) *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("signature", string(h.Signature)).
		Set("update sequence offset", h.UpdateSequenceOffset).
		Set("update sequence size", h.UpdateSequenceSize).
		Set("$LogFile sequence number", h.LogFileSequenceNumber).
		Set("sequence number", h.SequenceNumber).
		Set("hard link count", h.HardLinkCount).
		Set("first attribute offset", h.FirstAttributeOffset).
		Set("flags", fmt.Sprintf("%#04x", uint16(h.Flags))).
		Set("used size", h.UsedSize).
		Set("allocated size", h.AllocatedSize).
		Set("base record reference", h.BaseRecordReference.RecordNumber).
		Set("next attribute id", h.NextAttributeId).
		Set("record number", h.RecordNumber)
}

// AttributeHeader renders the common header of one attribute.
func AttributeHeader(h mft.AttributeHeader) *ordereddict.Dict {
	residency := "resident"
	if h.NonResident {
		residency = "non-resident"
	}
	return ordereddict.NewDict().
		Set("type", h.Type.Name()).
		Set("full length", h.FullLength).
		Set("residency", residency).
		Set("name length", h.NameLength).
		Set("name offset", h.NameOffset).
		Set("flags", fmt.Sprintf("%#04x", uint16(h.Flags))).
		Set("attribute id", h.AttributeId)
}

// Fprint writes a dictionary to w, one "key: value" line per field.
func Fprint(w io.Writer, d *ordereddict.Dict) error {
	for _, key := range d.Keys() {
		value, _ := d.Get(key)
		if _, err := fmt.Fprintf(w, "%s: %v\n", key, value); err != nil {
			return err
		}
	}
	return nil
}
