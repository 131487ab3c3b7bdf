package zipappend

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// Entry describes one file recorded in the central directory.
type Entry struct {
	Name             string
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
	// Offset is the position of the entry's local file header within
	// the archive.
	Offset   uint64
	Modified time.Time
	Mode     os.FileMode
}

// Entries lists the archive's central directory: the entries of the
// pre-existing archive first, then the entries appended through this
// Archive, in append order.
func (a *Archive) Entries() ([]Entry, error) {
	var entries []Entry
	buf := a.existingDirectory
	for len(buf) > 0 {
		e, n, err := parseDirectoryEntry(buf)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		buf = buf[n:]
	}
	for i := range a.pending {
		dh := &a.pending[i]
		compressed := uint64(dh.compressedSize)
		uncompressed := uint64(dh.uncompressedSize)
		if dh.extra.hasSizes {
			compressed = dh.extra.compressedSize
			uncompressed = dh.extra.uncompressedSize
		}
		entries = append(entries, Entry{
			Name:             dh.name,
			CRC32:            dh.crc32,
			CompressedSize:   compressed,
			UncompressedSize: uncompressed,
			Offset:           dh.trueOffset(),
			Modified:         msDosTimeToTime(dh.modifiedDate, dh.modifiedTime),
			Mode:             unixModeToFileMode(dh.externalAttrs >> 16),
		})
	}
	return entries, nil
}

// parseDirectoryEntry decodes one central directory header at the start
// of buf and reports how many bytes it occupied.
func parseDirectoryEntry(buf []byte) (Entry, int, error) {
	if len(buf) < directoryHeaderLen {
		return Entry{}, 0, fmt.Errorf("%w: truncated central directory header", ErrMalformedArchive)
	}
	if binary.LittleEndian.Uint32(buf) != directoryHeaderSignature {
		return Entry{}, 0, fmt.Errorf("%w: central directory header signature not found", ErrMalformedArchive)
	}
	b := readBuf(buf[4:])
	_ = b.uint16() // creator version
	_ = b.uint16() // reader version
	_ = b.uint16() // flags
	_ = b.uint16() // method
	modifiedTime := b.uint16()
	modifiedDate := b.uint16()
	crc := b.uint32()
	compressedSize := b.uint32()
	uncompressedSize := b.uint32()
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())
	commentLen := int(b.uint16())
	_ = b.uint16() // disk number start
	_ = b.uint16() // internal attributes
	externalAttrs := b.uint32()
	offset := b.uint32()

	total := directoryHeaderLen + nameLen + extraLen + commentLen
	if len(buf) < total {
		return Entry{}, 0, fmt.Errorf("%w: truncated central directory header", ErrMalformedArchive)
	}
	name := buf[directoryHeaderLen : directoryHeaderLen+nameLen]
	extra := buf[directoryHeaderLen+nameLen : directoryHeaderLen+nameLen+extraLen]

	e := Entry{
		Name:             string(name),
		CRC32:            crc,
		CompressedSize:   uint64(compressedSize),
		UncompressedSize: uint64(uncompressedSize),
		Offset:           uint64(offset),
		Modified:         msDosTimeToTime(modifiedDate, modifiedTime),
		Mode:             unixModeToFileMode(externalAttrs >> 16),
	}

	// The zip64 extra field carries the wide form of each field whose
	// narrow counterpart holds the overflow marker, in header order.
	for len(extra) >= 4 {
		eb := readBuf(extra)
		id := eb.uint16()
		size := int(eb.uint16())
		if size > len(eb) {
			break
		}
		if id == zip64ExtraID {
			fb := eb[:size]
			if uncompressedSize == uint32max && len(fb) >= 8 {
				e.UncompressedSize = fb.uint64()
			}
			if compressedSize == uint32max && len(fb) >= 8 {
				e.CompressedSize = fb.uint64()
			}
			if offset == uint32max && len(fb) >= 8 {
				e.Offset = fb.uint64()
			}
			break
		}
		extra = eb[size:]
	}
	return e, total, nil
}
