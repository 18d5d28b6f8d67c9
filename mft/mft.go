/*
	Package mft provides functions to parse records and their attributes in an NTFS Master File Table ("MFT" for short).

	Basic usage

	First parse a record header using mft.DecodeRecordHeader, then iterate the record's attributes with
	mft.NewAttributeIterator. Each attribute is returned as a view over the record buffer; parse its content with the
	various mft.Decode...() and mft.Parse...() functions.

	Update-sequence fixup is deliberately not applied: on volumes whose sector size is at least the record size this
	is benign, on others the last two bytes of each sector within a record are the update sequence array.
*/
package mft

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zerowindow/rawntfs/binutil"
)

var (
	fileSignature = []byte{'F', 'I', 'L', 'E'}
)

const (
	// RecordSize is the fixed size of the MFT records this package reads.
	RecordSize = 1024
	// RecordHeaderSize is the on-disk size of the record header.
	RecordHeaderSize = 48
)

// ErrAttributeOverflow indicates an attribute header whose full length does not fit in the remaining record bytes.
// Callers scanning many records typically recover from it by abandoning the record's remaining attributes.
var ErrAttributeOverflow = errors.New("attribute overflows record")

// A RecordHeader represents the fixed header of an MFT FILE record. When this is a base record, the
// BaseRecordReference is zero. When it is an extension record, the BaseRecordReference points to the record's base
// record.
type RecordHeader struct {
	Signature             []byte
	UpdateSequenceOffset  uint16
	UpdateSequenceSize    uint16
	LogFileSequenceNumber uint64
	SequenceNumber        uint16
	HardLinkCount         uint16
	FirstAttributeOffset  uint16
	Flags                 RecordFlag
	UsedSize              uint32
	AllocatedSize         uint32
	BaseRecordReference   FileReference
	NextAttributeId       uint16
	RecordNumber          uint32
}

// DecodeRecordHeader parses the first 48 bytes of an MFT record. The data is assumed to be in Little Endian order.
// The signature must be "FILE", the used size must not exceed the allocated size, and the first attribute offset must
// lie past the header.
func DecodeRecordHeader(b []byte) (RecordHeader, error) {
	if len(b) < RecordHeaderSize {
		return RecordHeader{}, fmt.Errorf("record header should be at least %d bytes but is %d", RecordHeaderSize, len(b))
	}
	sig := b[:4]
	if !bytes.Equal(sig, fileSignature) {
		return RecordHeader{}, fmt.Errorf("unknown record signature: %# x", sig)
	}

	r := binutil.NewLittleEndianReader(b)
	baseRecordRef, err := ParseFileReference(r.Read(0x20, 8))
	if err != nil {
		return RecordHeader{}, fmt.Errorf("unable to parse base record reference: %w", err)
	}

	h := RecordHeader{
		Signature:             binutil.Duplicate(sig),
		UpdateSequenceOffset:  r.Uint16(0x04),
		UpdateSequenceSize:    r.Uint16(0x06),
		LogFileSequenceNumber: r.Uint64(0x08),
		SequenceNumber:        r.Uint16(0x10),
		HardLinkCount:         r.Uint16(0x12),
		FirstAttributeOffset:  r.Uint16(0x14),
		Flags:                 RecordFlag(r.Uint16(0x16)),
		UsedSize:              r.Uint32(0x18),
		AllocatedSize:         r.Uint32(0x1C),
		BaseRecordReference:   baseRecordRef,
		NextAttributeId:       r.Uint16(0x28),
		RecordNumber:          r.Uint32(0x2C),
	}
	if h.UsedSize > h.AllocatedSize {
		return RecordHeader{}, fmt.Errorf("record used size %d exceeds allocated size %d", h.UsedSize, h.AllocatedSize)
	}
	if int(h.FirstAttributeOffset) < RecordHeaderSize || int(h.FirstAttributeOffset) >= len(b) {
		return RecordHeader{}, fmt.Errorf("invalid first attribute offset %d (data length: %d)", h.FirstAttributeOffset, len(b))
	}
	return h, nil
}

// Encode writes the header back into its 48-byte on-disk form.
func (h RecordHeader) Encode() []byte {
	b := make([]byte, RecordHeaderSize)
	copy(b, h.Signature)
	binary.LittleEndian.PutUint16(b[0x04:], h.UpdateSequenceOffset)
	binary.LittleEndian.PutUint16(b[0x06:], h.UpdateSequenceSize)
	binary.LittleEndian.PutUint64(b[0x08:], h.LogFileSequenceNumber)
	binary.LittleEndian.PutUint16(b[0x10:], h.SequenceNumber)
	binary.LittleEndian.PutUint16(b[0x12:], h.HardLinkCount)
	binary.LittleEndian.PutUint16(b[0x14:], h.FirstAttributeOffset)
	binary.LittleEndian.PutUint16(b[0x16:], uint16(h.Flags))
	binary.LittleEndian.PutUint32(b[0x18:], h.UsedSize)
	binary.LittleEndian.PutUint32(b[0x1C:], h.AllocatedSize)
	copy(b[0x20:], h.BaseRecordReference.Encode())
	binary.LittleEndian.PutUint16(b[0x28:], h.NextAttributeId)
	binary.LittleEndian.PutUint32(b[0x2C:], h.RecordNumber)
	return b
}

// A FileReference represents a reference to an MFT record. Since the record number field is only 6 bytes, the
// RecordNumber will not exceed 48 bits.
type FileReference struct {
	RecordNumber   uint64
	SequenceNumber uint16
}

// ParseFileReference parses a Little Endian ordered 8-byte slice into a FileReference. The first 6 bytes indicate the
// record number, while the final 2 bytes indicate the sequence number.
func ParseFileReference(b []byte) (FileReference, error) {
	if len(b) != 8 {
		return FileReference{}, fmt.Errorf("expected 8 bytes but got %d", len(b))
	}

	return FileReference{
		RecordNumber:   binary.LittleEndian.Uint64(binutil.PadUnsigned(b[:6])),
		SequenceNumber: binary.LittleEndian.Uint16(b[6:]),
	}, nil
}

// Encode writes the reference back into its 8-byte on-disk form.
func (f FileReference) Encode() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, f.RecordNumber)
	binary.LittleEndian.PutUint16(b[6:], f.SequenceNumber)
	return b
}

// IsZero reports whether this is the null reference.
func (f FileReference) IsZero() bool {
	return f.RecordNumber == 0 && f.SequenceNumber == 0
}

// RecordFlag represents a bit mask flag indicating the status of the MFT record.
type RecordFlag uint16

// Bit values for the RecordFlag. For example, an in-use directory has value 0x0003.
const (
	RecordFlagInUse       RecordFlag = 0x0001
	RecordFlagIsDirectory RecordFlag = 0x0002
	RecordFlagInExtend    RecordFlag = 0x0004
	RecordFlagIsIndex     RecordFlag = 0x0008
)

// Is checks if this RecordFlag's bit mask contains the specified flag.
func (f *RecordFlag) Is(c RecordFlag) bool {
	return *f&c == c
}

// An AttributeView is a borrowed slice of a record buffer covering one full attribute (header and content). The view
// is only valid while the underlying record buffer is.
type AttributeView struct {
	Header AttributeHeader
	data   []byte
}

// Bytes returns the full attribute bytes, header included. The slice aliases the record buffer.
func (v AttributeView) Bytes() []byte {
	return v.data
}

// Resident parses the resident form of this attribute's header.
func (v AttributeView) Resident() (ResidentAttribute, error) {
	return DecodeResidentAttribute(v.data)
}

// NonResident parses the non-resident form of this attribute's header.
func (v AttributeView) NonResident() (NonResidentAttribute, error) {
	return DecodeNonResidentAttribute(v.data)
}

// An AttributeIterator walks the attribute sequence of one MFT record without copying attribute data. Iteration is
// bounded by the record's used size and by the fixed record size, whichever is smaller, and requires room for at
// least a type and length header (8 bytes) per step.
type AttributeIterator struct {
	record []byte
	cursor int
	bound  int
}

// NewAttributeIterator creates an iterator over the attributes of the given record buffer. The buffer is borrowed,
// not copied.
func NewAttributeIterator(record []byte, h RecordHeader) *AttributeIterator {
	bound := int(h.UsedSize)
	if bound > len(record) {
		bound = len(record)
	}
	if bound > RecordSize {
		bound = RecordSize
	}
	return &AttributeIterator{record: record, cursor: int(h.FirstAttributeOffset), bound: bound}
}

// Next returns a view over the next attribute. The second return value is false when the attribute sequence is
// exhausted. An attribute whose full length is zero or overflows the record yields ErrAttributeOverflow; the iterator
// does not advance past it.
func (it *AttributeIterator) Next() (AttributeView, bool, error) {
	if it.cursor+8 >= it.bound {
		return AttributeView{}, false, nil
	}
	r := binutil.NewLittleEndianReader(it.record)
	if AttributeType(r.Uint32(it.cursor)) == AttributeTypeTerminator {
		return AttributeView{}, false, nil
	}

	fullLength := int(r.Uint32(it.cursor + 4))
	if fullLength <= 0 || fullLength > RecordSize-it.cursor || it.cursor+fullLength > len(it.record) {
		return AttributeView{}, false, fmt.Errorf("%w: full length %d at offset %d", ErrAttributeOverflow, fullLength, it.cursor)
	}

	data := it.record[it.cursor : it.cursor+fullLength]
	header, err := DecodeAttributeHeader(data)
	if err != nil {
		return AttributeView{}, false, err
	}
	it.cursor += fullLength
	return AttributeView{Header: header, data: data}, true, nil
}
