package mft

import (
	"fmt"
	"time"

	"github.com/zerowindow/rawntfs/binutil"
	"github.com/zerowindow/rawntfs/utf16"
)

// An AttributeHeader is the common part of every attribute header, resident or not.
type AttributeHeader struct {
	Type        AttributeType
	FullLength  uint32
	NonResident bool
	NameLength  uint8
	NameOffset  uint16
	Flags       AttributeFlags
	AttributeId uint16
}

// DecodeAttributeHeader parses the 16 common header bytes of an attribute. The full length must cover at least the
// header itself.
func DecodeAttributeHeader(b []byte) (AttributeHeader, error) {
	if len(b) < 16 {
		return AttributeHeader{}, fmt.Errorf("attribute header should be at least 16 bytes but is %d", len(b))
	}
	r := binutil.NewLittleEndianReader(b)
	h := AttributeHeader{
		Type:        AttributeType(r.Uint32(0x00)),
		FullLength:  r.Uint32(0x04),
		NonResident: r.Byte(0x08) != 0,
		NameLength:  r.Byte(0x09),
		NameOffset:  r.Uint16(0x0A),
		Flags:       AttributeFlags(r.Uint16(0x0C)),
		AttributeId: r.Uint16(0x0E),
	}
	if h.FullLength < 16 {
		return AttributeHeader{}, fmt.Errorf("attribute full length %d is shorter than its header", h.FullLength)
	}
	return h, nil
}

// Name decodes the attribute's own name (for example "$I30" on directory indexes). Unnamed attributes yield "".
func (v AttributeView) Name() (string, error) {
	h := v.Header
	if h.NameLength == 0 {
		return "", nil
	}
	end := int(h.NameOffset) + int(h.NameLength)*2
	if end > len(v.data) {
		return "", fmt.Errorf("attribute name of %d bytes does not fit in attribute of %d bytes", end, len(v.data))
	}
	return utf16.DecodeString(v.data[h.NameOffset:end])
}

// A ResidentAttribute describes where an attribute's content lives inside the attribute itself.
type ResidentAttribute struct {
	AttributeHeader
	ContentLength uint32
	ContentOffset uint16
	Indexed       bool
}

// DecodeResidentAttribute parses the resident form of an attribute header and validates that the content fits within
// the attribute's full length.
func DecodeResidentAttribute(b []byte) (ResidentAttribute, error) {
	h, err := DecodeAttributeHeader(b)
	if err != nil {
		return ResidentAttribute{}, err
	}
	if h.NonResident {
		return ResidentAttribute{}, fmt.Errorf("attribute type %#x is non-resident", uint32(h.Type))
	}
	if len(b) < 24 {
		return ResidentAttribute{}, fmt.Errorf("resident attribute header should be at least 24 bytes but is %d", len(b))
	}
	r := binutil.NewLittleEndianReader(b)
	a := ResidentAttribute{
		AttributeHeader: h,
		ContentLength:   r.Uint32(0x10),
		ContentOffset:   r.Uint16(0x14),
		Indexed:         r.Byte(0x16) != 0,
	}
	if uint64(a.ContentOffset)+uint64(a.ContentLength) > uint64(h.FullLength) {
		return ResidentAttribute{}, fmt.Errorf("resident content (offset %d, length %d) exceeds attribute length %d",
			a.ContentOffset, a.ContentLength, h.FullLength)
	}
	return a, nil
}

// ResidentContent returns the attribute's resident content bytes as a view over the record buffer.
func (v AttributeView) ResidentContent() ([]byte, error) {
	a, err := v.Resident()
	if err != nil {
		return nil, err
	}
	return v.data[a.ContentOffset : uint32(a.ContentOffset)+a.ContentLength], nil
}

// A NonResidentAttribute describes content stored in extents outside the MFT record; the extents are found by
// decoding the run list at DataRunOffset.
type NonResidentAttribute struct {
	AttributeHeader
	StartingVCN     uint64
	EndingVCN       uint64
	DataRunOffset   uint16
	CompressionUnit uint16
	AllocatedSize   uint64
	RealSize        uint64
	InitializedSize uint64
}

// DecodeNonResidentAttribute parses the non-resident form of an attribute header and validates the data run offset.
func DecodeNonResidentAttribute(b []byte) (NonResidentAttribute, error) {
	h, err := DecodeAttributeHeader(b)
	if err != nil {
		return NonResidentAttribute{}, err
	}
	if !h.NonResident {
		return NonResidentAttribute{}, fmt.Errorf("attribute type %#x is resident", uint32(h.Type))
	}
	if len(b) < 64 {
		return NonResidentAttribute{}, fmt.Errorf("non-resident attribute header should be at least 64 bytes but is %d", len(b))
	}
	r := binutil.NewLittleEndianReader(b)
	a := NonResidentAttribute{
		AttributeHeader: h,
		StartingVCN:     r.Uint64(0x10),
		EndingVCN:       r.Uint64(0x18),
		DataRunOffset:   r.Uint16(0x20),
		CompressionUnit: r.Uint16(0x22),
		AllocatedSize:   r.Uint64(0x28),
		RealSize:        r.Uint64(0x30),
		InitializedSize: r.Uint64(0x38),
	}
	if uint32(a.DataRunOffset) >= h.FullLength {
		return NonResidentAttribute{}, fmt.Errorf("data run offset %d exceeds attribute length %d", a.DataRunOffset, h.FullLength)
	}
	return a, nil
}

// RunData returns the packed data run stream at the tail of the attribute, as a view over the record buffer.
func (v AttributeView) RunData() ([]byte, error) {
	a, err := v.NonResident()
	if err != nil {
		return nil, err
	}
	return v.data[a.DataRunOffset:], nil
}

// AttributeType represents the type of an attribute. Use Name() to get the attribute type's name.
type AttributeType uint32

// Known values for AttributeType. Note that other values might occur too.
const (
	AttributeTypeStandardInformation AttributeType = 0x10       // $STANDARD_INFORMATION; always resident
	AttributeTypeAttributeList       AttributeType = 0x20       // $ATTRIBUTE_LIST; mixed residency
	AttributeTypeFileName            AttributeType = 0x30       // $FILE_NAME; always resident
	AttributeTypeObjectId            AttributeType = 0x40       // $OBJECT_ID; always resident
	AttributeTypeSecurityDescriptor  AttributeType = 0x50       // $SECURITY_DESCRIPTOR; always resident?
	AttributeTypeVolumeName          AttributeType = 0x60       // $VOLUME_NAME; always resident?
	AttributeTypeVolumeInformation   AttributeType = 0x70       // $VOLUME_INFORMATION; never resident?
	AttributeTypeData                AttributeType = 0x80       // $DATA; mixed residency
	AttributeTypeIndexRoot           AttributeType = 0x90       // $INDEX_ROOT; always resident
	AttributeTypeIndexAllocation     AttributeType = 0xa0       // $INDEX_ALLOCATION; never resident?
	AttributeTypeBitmap              AttributeType = 0xb0       // $BITMAP; nearly always resident?
	AttributeTypeReparsePoint        AttributeType = 0xc0       // $REPARSE_POINT; always resident?
	AttributeTypeEAInformation       AttributeType = 0xd0       // $EA_INFORMATION; always resident
	AttributeTypeEA                  AttributeType = 0xe0       // $EA; nearly always resident?
	AttributeTypePropertySet         AttributeType = 0xf0       // $PROPERTY_SET
	AttributeTypeLoggedUtilityStream AttributeType = 0x100      // $LOGGED_UTILITY_STREAM; always resident
	AttributeTypeTerminator          AttributeType = 0xFFFFFFFF // Indicates the last attribute in a record
)

// AttributeFlags represents a bit mask flag indicating various properties of an attribute's data.
type AttributeFlags uint16

// Bit values for the AttributeFlags. For example, an encrypted, compressed attribute has value 0x4001.
const (
	AttributeFlagsCompressed AttributeFlags = 0x0001
	AttributeFlagsEncrypted  AttributeFlags = 0x4000
	AttributeFlagsSparse     AttributeFlags = 0x8000
)

// Is checks if this AttributeFlags's bit mask contains the specified flag.
func (f *AttributeFlags) Is(c AttributeFlags) bool {
	return *f&c == c
}

type FileNameNamespace byte

// A FileName is the parsed content of a $FILE_NAME attribute.
type FileName struct {
	ParentFileReference FileReference
	Creation            time.Time
	FileLastModified    time.Time
	MftLastModified     time.Time
	LastAccess          time.Time
	AllocatedSize       uint64
	RealSize            uint64
	Flags               uint32
	ExtendedData        uint32
	Namespace           FileNameNamespace
	Name                string
}

// ParseFileName parses the content bytes of a $FILE_NAME attribute. The name is decoded from UTF-16 little endian;
// the length in code units is given by the name length byte at offset 0x40.
func ParseFileName(b []byte) (FileName, error) {
	if len(b) < 66 {
		return FileName{}, fmt.Errorf("expected at least %d bytes but got %d", 66, len(b))
	}

	fileNameLength := int(b[0x40]) * 2
	minExpectedSize := 66 + fileNameLength
	if len(b) < minExpectedSize {
		return FileName{}, fmt.Errorf("expected at least %d bytes but got %d", minExpectedSize, len(b))
	}

	r := binutil.NewLittleEndianReader(b)
	name, err := utf16.DecodeString(r.Read(0x42, fileNameLength))
	if err != nil {
		return FileName{}, fmt.Errorf("unable to decode file name: %w", err)
	}
	parentRef, err := ParseFileReference(r.Read(0x00, 8))
	if err != nil {
		return FileName{}, fmt.Errorf("unable to parse file reference: %w", err)
	}
	return FileName{
		ParentFileReference: parentRef,
		Creation:            ConvertFileTime(r.Uint64(0x08)),
		FileLastModified:    ConvertFileTime(r.Uint64(0x10)),
		MftLastModified:     ConvertFileTime(r.Uint64(0x18)),
		LastAccess:          ConvertFileTime(r.Uint64(0x20)),
		AllocatedSize:       r.Uint64(0x28),
		RealSize:            r.Uint64(0x30),
		Flags:               r.Uint32(0x38),
		ExtendedData:        r.Uint32(0x3c),
		Namespace:           FileNameNamespace(r.Byte(0x41)),
		Name:                name,
	}, nil
}

// ConvertFileTime converts an NTFS timestamp (100-nanosecond intervals since 1601) to a time.Time.
func ConvertFileTime(timeValue uint64) time.Time {
	dur := time.Duration(int64(timeValue))
	r := time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		r = r.Add(dur)
	}
	return r
}

// Name returns a string representation of the attribute type. For example "$STANDARD_INFORMATION" or "$FILE_NAME".
// For any attribute type which is unknown, Name will return "unknown".
func (at AttributeType) Name() string {
	switch at {
	case AttributeTypeStandardInformation:
		return "$STANDARD_INFORMATION"
	case AttributeTypeAttributeList:
		return "$ATTRIBUTE_LIST"
	case AttributeTypeFileName:
		return "$FILE_NAME"
	case AttributeTypeObjectId:
		return "$OBJECT_ID"
	case AttributeTypeSecurityDescriptor:
		return "$SECURITY_DESCRIPTOR"
	case AttributeTypeVolumeName:
		return "$VOLUME_NAME"
	case AttributeTypeVolumeInformation:
		return "$VOLUME_INFORMATION"
	case AttributeTypeData:
		return "$DATA"
	case AttributeTypeIndexRoot:
		return "$INDEX_ROOT"
	case AttributeTypeIndexAllocation:
		return "$INDEX_ALLOCATION"
	case AttributeTypeBitmap:
		return "$BITMAP"
	case AttributeTypeReparsePoint:
		return "$REPARSE_POINT"
	case AttributeTypeEAInformation:
		return "$EA_INFORMATION"
	case AttributeTypeEA:
		return "$EA"
	case AttributeTypePropertySet:
		return "$PROPERTY_SET"
	case AttributeTypeLoggedUtilityStream:
		return "$LOGGED_UTILITY_STREAM"
	}
	return "unknown"
}
