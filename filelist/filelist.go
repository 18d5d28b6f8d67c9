// Package filelist holds the catalogue of files discovered while scanning an extracted MFT copy.
package filelist

import (
	"fmt"
	"io"
)

// An Entry catalogues one FILE record: its name (empty when the record carried no $FILE_NAME attribute), the
// absolute device byte offset of the MFT fragment the record was read from, and the record number. Identity is the
// record number plus the owning fragment.
type Entry struct {
	Name           string
	FragmentOffset uint64
	RecordNumber   uint32
}

// A List is an append-only catalogue of entries; iteration and printing follow insertion order.
type List struct {
	entries []Entry
}

// New creates an empty List.
func New() *List {
	return &List{}
}

// Append adds one entry at the end of the catalogue.
func (l *List) Append(name string, fragmentOffset uint64, recordNumber uint32) {
	l.entries = append(l.entries, Entry{Name: name, FragmentOffset: fragmentOffset, RecordNumber: recordNumber})
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.entries)
}

// Entries returns the catalogue in insertion order. The returned slice is owned by the List.
func (l *List) Entries() []Entry {
	return l.entries
}

// Print writes one row per entry to w, in insertion order. Entries without a name render as "(unnamed)".
func (l *List) Print(w io.Writer) error {
	for _, e := range l.entries {
		name := e.Name
		if name == "" {
			name = "(unnamed)"
		}
		if _, err := fmt.Fprintf(w, "%8d  %s\n", e.RecordNumber, name); err != nil {
			return err
		}
	}
	return nil
}
