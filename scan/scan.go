/*
	Package scan walks a local MFT copy produced by the extract package and builds the file catalogue. The copy is
	read in fixed 1024-byte strides: a stride is either a fragment marker slot or one FILE record.
*/
package scan

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/zerowindow/rawntfs/filelist"
	"github.com/zerowindow/rawntfs/fragment"
	"github.com/zerowindow/rawntfs/logger"
	"github.com/zerowindow/rawntfs/mft"
)

// ErrUnknownSignature indicates a stride in the local copy that is neither a fragment marker nor a FILE record.
var ErrUnknownSignature = errors.New("unknown record signature in MFT copy")

var fileSignature = []byte{'F', 'I', 'L', 'E'}

// Counters totals what the scanner saw.
type Counters struct {
	Records       int
	Files         int
	Directories   int
	Deleted       int
	Other         int
	BadAttributes int
	FileNames     int
	Fragments     int
}

// Add accumulates another scan's totals into c.
func (c *Counters) Add(o Counters) {
	c.Records += o.Records
	c.Files += o.Files
	c.Directories += o.Directories
	c.Deleted += o.Deleted
	c.Other += o.Other
	c.BadAttributes += o.BadAttributes
	c.FileNames += o.FileNames
	c.Fragments += o.Fragments
}

// MFT reads a local MFT copy from r and catalogues every FILE record it contains. The catalogue carries, for each
// record, the name of its last $FILE_NAME attribute (empty when it had none) and the absolute device offset of the
// MFT fragment the record was read from. A record whose attribute walk hits an overlong attribute only loses its
// remaining attributes; a stride with an unknown signature aborts the whole scan.
func MFT(r io.Reader) (*filelist.List, Counters, error) {
	log := logger.S()
	files := filelist.New()
	var c Counters

	buf := make([]byte, mft.RecordSize)
	currentFragmentOffset := uint64(0)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return files, c, nil
			}
			return files, c, fmt.Errorf("unable to read next record from MFT copy: %w", err)
		}

		switch {
		case fragment.IsMarker(buf):
			marker, err := fragment.DecodeMarker(buf)
			if err != nil {
				return files, c, err
			}
			currentFragmentOffset = marker.DeviceOffset
			c.Fragments++
			log.Debugf("fragment marker: records that follow come from device offset %d", currentFragmentOffset)

		case bytes.Equal(buf[:4], fileSignature):
			header, err := mft.DecodeRecordHeader(buf)
			if err != nil {
				return files, c, fmt.Errorf("corrupt FILE record in MFT copy: %w", err)
			}
			c.Records++
			classify(header.Flags, &c)

			name := scanAttributes(buf, header, &c)
			files.Append(name, currentFragmentOffset, header.RecordNumber)

		default:
			return files, c, fmt.Errorf("%w: %# x", ErrUnknownSignature, buf[:4])
		}
	}
}

// classify buckets a record by the in-use and directory bits alone: both clear means a deleted entity, in-use alone
// a file, both set a directory. The remaining pattern (directory bit without in-use) matches none of those.
func classify(flags mft.RecordFlag, c *Counters) {
	switch flags & (mft.RecordFlagInUse | mft.RecordFlagIsDirectory) {
	case 0:
		c.Deleted++
	case mft.RecordFlagInUse:
		c.Files++
	case mft.RecordFlagInUse | mft.RecordFlagIsDirectory:
		c.Directories++
	default:
		c.Other++
	}
}

func scanAttributes(record []byte, header mft.RecordHeader, c *Counters) string {
	name := ""
	it := mft.NewAttributeIterator(record, header)
	for {
		view, ok, err := it.Next()
		if err != nil {
			c.BadAttributes++
			return name
		}
		if !ok {
			return name
		}

		switch view.Header.Type {
		case mft.AttributeTypeFileName:
			content, err := view.ResidentContent()
			if err != nil {
				c.BadAttributes++
				return name
			}
			fn, err := mft.ParseFileName(content)
			if err != nil {
				c.BadAttributes++
				return name
			}
			name = fn.Name
			c.FileNames++
		case mft.AttributeTypeData:
			// Resident content is accessible through the view but deliberately not decoded.
		default:
			// Recognised types (STANDARD_INFORMATION, INDEX_ROOT, BITMAP, ...) are classified but not parsed.
		}
	}
}
