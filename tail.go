package zipappend

import (
	"context"
	"encoding/binary"
	"fmt"
)

// maxTailLen bounds the initial read when reopening an archive: the
// classic end record with the longest possible comment, preceded by a
// zip64 locator.
const maxTailLen = maxCommentLen + directoryEndLen + directory64LocLen

type readBuf []byte

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

func parseEndOfCentralDirectory(buf []byte) endOfCentralDirectory {
	b := readBuf(buf[4:]) // skip signature
	e := endOfCentralDirectory{
		diskNumber:          b.uint16(),
		directoryDiskNumber: b.uint16(),
		recordsOnDisk:       b.uint16(),
		records:             b.uint16(),
		directorySize:       b.uint32(),
		directoryOffset:     b.uint32(),
	}
	commentLen := int(b.uint16())
	if commentLen <= len(b) {
		e.comment = string(b[:commentLen])
	}
	return e
}

func parseZip64EndOfCentralDirectory(buf []byte) zip64EndOfCentralDirectory {
	b := readBuf(buf[4:])
	_ = b.uint64() // record size; extensible data is not interpreted
	return zip64EndOfCentralDirectory{
		creatorVersion:      b.uint16(),
		readerVersion:       b.uint16(),
		diskNumber:          b.uint32(),
		directoryDiskNumber: b.uint32(),
		recordsOnDisk:       b.uint64(),
		records:             b.uint64(),
		directorySize:       b.uint64(),
		directoryOffset:     b.uint64(),
	}
}

func parseZip64Locator(buf []byte) zip64EndOfCentralDirectoryLocator {
	b := readBuf(buf[4:])
	return zip64EndOfCentralDirectoryLocator{
		directoryDiskNumber: b.uint32(),
		offset:              b.uint64(),
		totalDisks:          b.uint32(),
	}
}

// archiveTail is the reconstructed trailer state of an existing archive:
// the classic end record, the zip64 records when present, and the
// central directory bytes verbatim.
type archiveTail struct {
	eocd      endOfCentralDirectory
	zip64     *zip64EndOfCentralDirectory
	locator   *zip64EndOfCentralDirectoryLocator
	directory []byte
}

// findEndOfCentralDirectory scans buf backwards for the end record
// signature. The last record in the file wins, so the scan starts at
// the highest offset that still leaves room for the base record.
func findEndOfCentralDirectory(buf []byte) int {
	for i := len(buf) - directoryEndLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:i+4]) == directoryEndSignature {
			return i
		}
	}
	return -1
}

// readTail locates and decodes the trailer of an existing archive and
// loads its central directory.
func readTail(ctx context.Context, store Store, archiveSize int64) (*archiveTail, error) {
	if archiveSize < directoryEndLen {
		return nil, fmt.Errorf("%w: archive shorter than an end of central directory record", ErrMalformedArchive)
	}
	tailLen := int64(maxTailLen)
	if tailLen > archiveSize {
		tailLen = archiveSize
	}
	tailStart := archiveSize - tailLen
	buf := make([]byte, tailLen)
	if err := readFull(ctx, store, buf, tailStart); err != nil {
		return nil, fmt.Errorf("zipappend: reading archive tail: %w", err)
	}

	i := findEndOfCentralDirectory(buf)
	if i < 0 {
		return nil, fmt.Errorf("%w: end of central directory signature not found", ErrMalformedArchive)
	}
	t := &archiveTail{eocd: parseEndOfCentralDirectory(buf[i:])}

	// A zip64 archive places the locator immediately before the end
	// record.
	if i >= directory64LocLen &&
		binary.LittleEndian.Uint32(buf[i-directory64LocLen:]) == directory64LocSignature {
		locator := parseZip64Locator(buf[i-directory64LocLen:])
		t.locator = &locator

		if locator.offset+directory64EndLen > uint64(archiveSize) {
			return nil, fmt.Errorf("%w: zip64 end of central directory offset beyond archive end", ErrMalformedArchive)
		}
		var zbuf []byte
		if locator.offset < uint64(tailStart) {
			// The zip64 record lies before the tail buffer, read it
			// separately.
			zbuf = make([]byte, uint64(archiveSize)-locator.offset)
			if err := readFull(ctx, store, zbuf, int64(locator.offset)); err != nil {
				return nil, fmt.Errorf("zipappend: reading zip64 end of central directory: %w", err)
			}
		} else {
			zbuf = buf[locator.offset-uint64(tailStart):]
		}
		if binary.LittleEndian.Uint32(zbuf) != directory64EndSignature {
			return nil, fmt.Errorf("%w: zip64 end of central directory signature not found", ErrMalformedArchive)
		}
		z := parseZip64EndOfCentralDirectory(zbuf)
		t.zip64 = &z
	}

	directoryOffset := uint64(t.eocd.directoryOffset)
	directorySize := uint64(t.eocd.directorySize)
	if t.zip64 != nil {
		directoryOffset = t.zip64.directoryOffset
		directorySize = t.zip64.directorySize
	}
	if directoryOffset+directorySize > uint64(archiveSize) {
		return nil, fmt.Errorf("%w: central directory extends beyond archive end", ErrMalformedArchive)
	}
	t.directory = make([]byte, directorySize)
	if err := readFull(ctx, store, t.directory, int64(directoryOffset)); err != nil {
		return nil, fmt.Errorf("zipappend: reading central directory: %w", err)
	}
	return t, nil
}

// readFull reads exactly len(p) bytes at off, treating a short read
// without an error as a failure.
func readFull(ctx context.Context, store Store, p []byte, off int64) error {
	n, err := store.ReadAt(ctx, p, off)
	if n == len(p) {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("short read of %d bytes at offset %d", len(p), off)
	}
	return err
}
