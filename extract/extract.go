/*
	Package extract materialises the $MFT metafile of an NTFS partition into a local copy. The copy is a sequence of
	(fragment marker, extent bytes) pairs in run order, so a later scan can attribute every record to the device
	offset it came from without touching the device again.
*/
package extract

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/zerowindow/rawntfs/bootsect"
	"github.com/zerowindow/rawntfs/device"
	"github.com/zerowindow/rawntfs/fragment"
	"github.com/zerowindow/rawntfs/logger"
	"github.com/zerowindow/rawntfs/mbr"
	"github.com/zerowindow/rawntfs/mft"
)

const mftFileName = "$MFT"

// ErrNotMftRecord indicates that MFT record 0 does not carry the name $MFT, meaning the volume's MFT is not where
// the boot sector says it is.
var ErrNotMftRecord = errors.New("record 0 is not $MFT")

// A Report summarises one extraction.
type Report struct {
	Boot      bootsect.BootSector
	Path      string
	Fragments int
	Bytes     int64
	RealSize  uint64
}

// MFT locates the $MFT metafile of the given NTFS partition and writes a marker-prefixed copy of all its extents to
// path on out. The session's device position is restored before returning, whether extraction succeeds or not.
func MFT(sess *device.Session, part mbr.PartitionEntry, out afero.Fs, path string) (Report, error) {
	log := logger.S()
	restore := sess.Offset()
	defer sess.SeekAbs(restore)

	partStart := part.StartOffsetBytes()
	if _, err := sess.SeekAbs(int64(partStart)); err != nil {
		return Report{}, err
	}
	sector := make([]byte, mbr.SectorSize)
	if err := sess.ReadFull(sector); err != nil {
		return Report{}, fmt.Errorf("unable to read boot sector: %w", err)
	}
	boot, err := bootsect.Parse(sector)
	if err != nil {
		return Report{}, err
	}

	bytesPerCluster := boot.BytesPerCluster()
	mftOffset := partStart + boot.MftClusterNumber*uint64(bytesPerCluster)
	if size, err := sess.Size(); err == nil && mftOffset >= uint64(size) {
		return Report{}, fmt.Errorf("%w: mft offset %d is beyond the device end %d", bootsect.ErrInvalid, mftOffset, size)
	}
	log.Debugf("bytes per cluster: %d, absolute MFT offset: %d", bytesPerCluster, mftOffset)

	if _, err := sess.SeekAbs(int64(mftOffset)); err != nil {
		return Report{}, err
	}
	record := make([]byte, mft.RecordSize)
	if err := sess.ReadFull(record); err != nil {
		return Report{}, fmt.Errorf("unable to read MFT record 0: %w", err)
	}

	header, err := mft.DecodeRecordHeader(record)
	if err != nil {
		return Report{}, fmt.Errorf("unable to decode MFT record 0: %w", err)
	}

	name := ""
	var data *mft.NonResidentAttribute
	var runData []byte
	it := mft.NewAttributeIterator(record, header)
	for {
		view, ok, err := it.Next()
		if err != nil {
			return Report{}, fmt.Errorf("bad attribute in MFT record 0: %w", err)
		}
		if !ok {
			break
		}
		switch view.Header.Type {
		case mft.AttributeTypeFileName:
			content, err := view.ResidentContent()
			if err != nil {
				return Report{}, fmt.Errorf("unable to read $FILE_NAME content: %w", err)
			}
			fn, err := mft.ParseFileName(content)
			if err != nil {
				return Report{}, fmt.Errorf("unable to parse $FILE_NAME: %w", err)
			}
			name = fn.Name
		case mft.AttributeTypeData:
			if !view.Header.NonResident {
				continue
			}
			attr, err := view.NonResident()
			if err != nil {
				return Report{}, fmt.Errorf("unable to decode $DATA attribute: %w", err)
			}
			rd, err := view.RunData()
			if err != nil {
				return Report{}, err
			}
			data = &attr
			runData = rd
		}
	}

	if name != mftFileName {
		return Report{}, fmt.Errorf("%w: record 0 is named %q", ErrNotMftRecord, name)
	}
	if data == nil {
		return Report{}, fmt.Errorf("%w: no non-resident $DATA attribute found", ErrNotMftRecord)
	}
	log.Debugf("$MFT meta file found, real size %d bytes", data.RealSize)

	runs, err := mft.DecodeRunList(runData)
	if err != nil {
		return Report{}, err
	}
	frags := runs.Fragments(partStart, bytesPerCluster)
	if len(frags) > 1 {
		log.Infof("%s is fragmented on disk, located %d fragments", mftFileName, len(frags))
	}

	f, err := out.Create(path)
	if err != nil {
		return Report{}, fmt.Errorf("unable to create local MFT copy %s: %w", path, err)
	}
	defer f.Close()

	w := fragment.NewWriter(f)
	for _, frag := range frags {
		if _, err := sess.SeekAbs(frag.Offset); err != nil {
			return Report{}, err
		}
		extent := make([]byte, frag.Length)
		if err := sess.ReadFull(extent); err != nil {
			return Report{}, fmt.Errorf("unable to read MFT extent at offset %d: %w", frag.Offset, err)
		}
		if err := w.WriteExtent(uint64(frag.Offset), extent); err != nil {
			return Report{}, err
		}
	}
	if err := f.Close(); err != nil {
		return Report{}, fmt.Errorf("unable to finish local MFT copy %s: %w", path, err)
	}
	log.Infof("wrote %d bytes of $MFT in %d fragments to %s", w.Bytes(), w.Fragments(), path)

	return Report{
		Boot:      boot,
		Path:      path,
		Fragments: w.Fragments(),
		Bytes:     w.Bytes(),
		RealSize:  data.RealSize,
	}, nil
}
