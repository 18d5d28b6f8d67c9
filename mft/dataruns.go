package mft

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zerowindow/rawntfs/binutil"
	"github.com/zerowindow/rawntfs/fragment"
)

// ErrInvalidRunList is wrapped by every rejection of a packed data run stream.
var ErrInvalidRunList = errors.New("invalid run list")

// A DataRun represents a fragment of data somewhere on a volume. The OffsetClusters, which can be negative, is
// relative to the previous DataRun's offset; the first run's offset is relative to the beginning of the volume.
// A sparse run has no location on disk at all: its length is valid but its offset is meaningless.
type DataRun struct {
	LengthClusters uint64
	OffsetClusters int64
	Sparse         bool
}

// A RunList is the ordered sequence of data runs of one non-resident attribute.
type RunList []DataRun

// DecodeRunList parses the packed data run stream at the tail of a non-resident attribute. Each run starts with a
// header byte whose low nibble is the byte width of the length field and whose high nibble is the byte width of the
// offset field; the stream terminates on a zero header byte. Lengths are unsigned, offsets are sign extended from
// their variable width. An offset width of zero marks a sparse run. A zero-length run, a field width over 8, or a
// stream that ends without the terminator wraps ErrInvalidRunList.
func DecodeRunList(b []byte) (RunList, error) {
	runs := make(RunList, 0, 4)
	for {
		if len(b) == 0 {
			return nil, fmt.Errorf("%w: stream ended without terminator", ErrInvalidRunList)
		}
		header := b[0]
		if header == 0 {
			return runs, nil
		}

		lengthWidth := int(header & 0x0F)
		offsetWidth := int(header >> 4)
		if lengthWidth > 8 || offsetWidth > 8 {
			return nil, fmt.Errorf("%w: field widths %d/%d exceed 8 bytes", ErrInvalidRunList, lengthWidth, offsetWidth)
		}
		if len(b) < 1+lengthWidth+offsetWidth {
			return nil, fmt.Errorf("%w: expected %d bytes of run data but only %d remain", ErrInvalidRunList, lengthWidth+offsetWidth, len(b)-1)
		}

		length := binary.LittleEndian.Uint64(binutil.PadUnsigned(b[1 : 1+lengthWidth]))
		if length == 0 {
			return nil, fmt.Errorf("%w: run with zero length", ErrInvalidRunList)
		}
		run := DataRun{LengthClusters: length, Sparse: offsetWidth == 0}
		if !run.Sparse {
			run.OffsetClusters = int64(binary.LittleEndian.Uint64(binutil.PadSigned(b[1+lengthWidth : 1+lengthWidth+offsetWidth])))
		}
		runs = append(runs, run)
		b = b[1+lengthWidth+offsetWidth:]
	}
}

// Encode packs the run list back into its on-disk form using the smallest field widths that still round-trip, ending
// with the zero terminator byte.
func (rl RunList) Encode() []byte {
	out := make([]byte, 0, len(rl)*4+1)
	var scratch [8]byte
	for _, run := range rl {
		lengthWidth := unsignedWidth(run.LengthClusters)
		offsetWidth := 0
		if !run.Sparse {
			offsetWidth = signedWidth(run.OffsetClusters)
		}
		out = append(out, byte(offsetWidth<<4|lengthWidth))
		binary.LittleEndian.PutUint64(scratch[:], run.LengthClusters)
		out = append(out, scratch[:lengthWidth]...)
		if !run.Sparse {
			binary.LittleEndian.PutUint64(scratch[:], uint64(run.OffsetClusters))
			out = append(out, scratch[:offsetWidth]...)
		}
	}
	return append(out, 0x00)
}

func unsignedWidth(v uint64) int {
	w := 1
	for v > 0xFF {
		v >>= 8
		w++
	}
	return w
}

func signedWidth(v int64) int {
	for w := 1; w < 8; w++ {
		shift := uint(64 - 8*w)
		if v<<shift>>shift == v {
			return w
		}
	}
	return 8
}

// TotalClusters sums the lengths of all runs, sparse runs included.
func (rl RunList) TotalClusters() uint64 {
	var total uint64
	for _, run := range rl {
		total += run.LengthClusters
	}
	return total
}

// Fragments resolves the run list's cumulative VCN deltas into absolute device byte extents. The absolute LCN of
// each run is the running sum of the offset deltas; the device byte offset of run i is
// partitionOffset + LCN_i * bytesPerCluster. Sparse runs occupy no space on disk and are left out.
func (rl RunList) Fragments(partitionOffset uint64, bytesPerCluster int) []fragment.Fragment {
	frags := make([]fragment.Fragment, 0, len(rl))
	lcn := int64(0)
	for _, run := range rl {
		if run.Sparse {
			continue
		}
		lcn += run.OffsetClusters
		frags = append(frags, fragment.Fragment{
			Offset: int64(partitionOffset) + lcn*int64(bytesPerCluster),
			Length: int64(run.LengthClusters) * int64(bytesPerCluster),
		})
	}
	return frags
}
