// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package zipappend assembles ZIP archives over a random-access byte store,
either from scratch or by appending entries to an existing archive.

Entries are always stored uncompressed (method 0) and the caller supplies
the CRC-32 of the data in advance, so payload bytes can be streamed to
the store out of band and in any order. When any size, offset or entry
count outgrows its classic 32 or 16 bit field the writer transparently
promotes the archive to the ZIP64 format.

See: https://www.pkware.com/appnote

This package does not support disk spanning, encryption, or compression.
An Archive is not safe for concurrent use; one writer exists per open
archive.
*/
package zipappend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	// ErrMalformedArchive is returned by Open when the trailer of an
	// existing archive cannot be located or decoded.
	ErrMalformedArchive = errors.New("zipappend: malformed archive")
	// ErrArchiveTooLarge is returned when a 64 bit offset computation
	// would overflow.
	ErrArchiveTooLarge = errors.New("zipappend: archive too large")
	// ErrCommentTooLong is returned by SetComment for comments longer
	// than 65535 bytes.
	ErrCommentTooLong = errors.New("zipappend: comment too long")

	errLongName = errors.New("zipappend: file name too long")
)

type archiveState int

const (
	stateClosed archiveState = iota
	stateReady
	stateWriting
	stateFinalized
)

// Archive is a ZIP archive open for appending. The zero value is not
// usable; call Open or OpenStore.
type Archive struct {
	store Store
	state archiveState

	// Trailer state. eocd is nil on a brand new archive until the
	// first Append. zip64 and locator are non-nil once the archive is
	// promoted; promotion is one-way.
	eocd    *endOfCentralDirectory
	zip64   *zip64EndOfCentralDirectory
	locator *zip64EndOfCentralDirectoryLocator
	comment string

	// Central directory bytes of the pre-existing archive, re-emitted
	// verbatim ahead of the new headers.
	existingDirectory []byte
	pending           []directoryHeader

	// writeOffset tracks where the current entry's payload starts.
	writeOffset uint64
}

// Open opens or creates the archive at the given filesystem path.
func Open(ctx context.Context, path string) (*Archive, error) {
	return OpenStore(ctx, FileOpener{}, path)
}

// OpenStore opens or creates an archive through the given Opener. If
// the object exists its trailer is parsed and subsequent entries are
// appended after the existing ones; otherwise a new archive is started.
func OpenStore(ctx context.Context, opener Opener, url string) (*Archive, error) {
	info, err := opener.Stat(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("zipappend: stat %s: %w", url, err)
	}
	if !info.Exists {
		store, err := opener.Open(ctx, url, NewForUpdate)
		if err != nil {
			return nil, fmt.Errorf("zipappend: create %s: %w", url, err)
		}
		return &Archive{store: store, state: stateReady}, nil
	}
	store, err := opener.Open(ctx, url, Update)
	if err != nil {
		return nil, fmt.Errorf("zipappend: open %s: %w", url, err)
	}
	tail, err := readTail(ctx, store, info.Size)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Archive{
		store:             store,
		state:             stateReady,
		eocd:              &tail.eocd,
		zip64:             tail.zip64,
		locator:           tail.locator,
		comment:           tail.eocd.comment,
		existingDirectory: tail.directory,
	}, nil
}

// SetComment sets the archive comment emitted by Finalize. By default
// a new archive has no comment and an existing archive keeps the one
// it had.
func (a *Archive) SetComment(comment string) error {
	if len(comment) > maxCommentLen {
		return ErrCommentTooLong
	}
	a.comment = comment
	return nil
}

// Append adds an entry for a stored file of the given size and starts
// it at the current end of the entry region. The entry's local file
// header is written immediately; the payload bytes are supplied
// afterwards through WriteFileData and must cover [0, size) exactly.
//
// crc is the precomputed CRC-32 (IEEE) of the full file contents and
// mode the POSIX file mode recorded in the entry's external attributes.
func (a *Archive) Append(ctx context.Context, name string, crc uint32, size uint64, modified time.Time, mode os.FileMode) error {
	switch a.state {
	case stateReady, stateWriting:
	case stateFinalized:
		return errors.New("zipappend: append after finalize")
	default:
		return errors.New("zipappend: archive is closed")
	}
	if len(name) > uint16max {
		return errLongName
	}

	lfh := newLocalFileHeader(name, crc, size, modified)
	var dh directoryHeader
	switch {
	case a.eocd == nil:
		// Brand new archive, first entry.
		dh = newDirectoryHeader(&lfh, mode, 0)
		eocd, useZip64 := newEndOfCentralDirectory(&lfh, &dh)
		a.eocd = &eocd
		if useZip64 {
			z := newZip64EndOfCentralDirectory(a.eocd, &lfh, &dh, directoryCounters{})
			l := newZip64Locator(a.eocd, &z)
			a.zip64, a.locator = &z, &l
		}

	case a.zip64 != nil:
		// Appending to a zip64 archive. The classic record counts keep
		// counting until they clamp at the overflow marker; the wide
		// counters in the zip64 record are authoritative.
		dh = newDirectoryHeader(&lfh, mode, a.zip64.directoryOffset)
		entryLen, err := checkedAdd(lfh.size(), lfh.payloadSize())
		if err != nil {
			return err
		}
		offset, err := checkedAdd(a.zip64.directoryOffset, entryLen)
		if err != nil {
			return err
		}
		a.eocd.recordsOnDisk = saturatingAdd16(a.eocd.recordsOnDisk)
		a.eocd.records = saturatingAdd16(a.eocd.records)
		a.zip64.recordsOnDisk++
		a.zip64.records++
		a.zip64.directorySize += dh.size()
		a.zip64.directoryOffset = offset
		a.locator.offset = a.zip64.directoryOffset + a.zip64.directorySize

	default:
		// Appending to a classic archive. Compute the tentative new
		// totals first; any overflow promotes the archive to zip64 for
		// the rest of its life.
		dh = newDirectoryHeader(&lfh, mode, uint64(a.eocd.directoryOffset))
		newSize := uint64(a.eocd.directorySize) + dh.size()
		newOffset := uint64(a.eocd.directoryOffset) + lfh.size() + uint64(lfh.compressedSize)
		promote := newSize >= uint32max ||
			lfh.compressedSize == uint32max ||
			newOffset >= uint32max ||
			uint32(a.eocd.recordsOnDisk)+1 >= uint16max ||
			uint32(a.eocd.records)+1 >= uint16max
		if promote {
			prev := directoryCounters{
				records: uint64(a.eocd.records),
				size:    uint64(a.eocd.directorySize),
				offset:  uint64(a.eocd.directoryOffset),
			}
			a.eocd.recordsOnDisk = saturatingAdd16(a.eocd.recordsOnDisk)
			a.eocd.records = saturatingAdd16(a.eocd.records)
			a.eocd.directorySize = uint32max
			a.eocd.directoryOffset = uint32max
			z := newZip64EndOfCentralDirectory(a.eocd, &lfh, &dh, prev)
			l := newZip64Locator(a.eocd, &z)
			a.zip64, a.locator = &z, &l
		} else {
			a.eocd.recordsOnDisk++
			a.eocd.records++
			a.eocd.directorySize = uint32(newSize)
			a.eocd.directoryOffset = uint32(newOffset)
		}
	}

	a.pending = append(a.pending, dh)

	// The entry's local header goes where the central directory used
	// to start; the directory is rewritten after it by Finalize.
	a.writeOffset = dh.trueOffset()
	if err := writeFull(ctx, a.store, encodeLocalFileHeader(&lfh), int64(a.writeOffset)); err != nil {
		return fmt.Errorf("zipappend: writing local file header: %w", err)
	}
	a.writeOffset += lfh.size()
	a.state = stateWriting
	return nil
}

// WriteFileData stores payload bytes of the entry added by the most
// recent Append. fileOffset is the position within the entry's data,
// so the bytes of one entry may be written in any order and need not
// arrive in one call; together the calls must cover the entry's full
// size exactly.
func (a *Archive) WriteFileData(ctx context.Context, p []byte, fileOffset int64) (int, error) {
	if a.state != stateWriting {
		return 0, errors.New("zipappend: no entry open for writing")
	}
	return a.store.WriteAt(ctx, p, int64(a.writeOffset)+fileOffset)
}

// Finalize writes the archive trailer: the pre-existing central
// directory bytes, the new central directory headers, the zip64 records
// when the archive is promoted, and the end of central directory
// record. Finalize is idempotent: calling it twice in a row rewrites
// an identical trailer.
func (a *Archive) Finalize(ctx context.Context) error {
	switch a.state {
	case stateReady, stateWriting, stateFinalized:
	default:
		return errors.New("zipappend: archive is closed")
	}

	eocd := a.eocd
	if eocd == nil {
		// No entries were ever appended; produce a valid empty archive.
		eocd = &endOfCentralDirectory{}
	}
	eocd.comment = a.comment

	offset := uint64(eocd.directoryOffset)
	if a.zip64 != nil {
		offset = a.zip64.directoryOffset
	}
	if len(a.existingDirectory) > 0 {
		if err := writeFull(ctx, a.store, a.existingDirectory, int64(offset)); err != nil {
			return fmt.Errorf("zipappend: writing central directory: %w", err)
		}
		offset += uint64(len(a.existingDirectory))
	}
	for i := range a.pending {
		dh := &a.pending[i]
		if err := writeFull(ctx, a.store, encodeDirectoryHeader(dh), int64(offset)); err != nil {
			return fmt.Errorf("zipappend: writing central directory: %w", err)
		}
		offset += dh.size()
	}
	if a.zip64 != nil {
		if err := writeFull(ctx, a.store, encodeZip64EndOfCentralDirectory(a.zip64), int64(offset)); err != nil {
			return fmt.Errorf("zipappend: writing zip64 end of central directory: %w", err)
		}
		offset += directory64EndLen
		if err := writeFull(ctx, a.store, encodeZip64Locator(a.locator), int64(offset)); err != nil {
			return fmt.Errorf("zipappend: writing zip64 locator: %w", err)
		}
		offset += directory64LocLen
	}
	// The end record is written last so that a crash mid-Finalize
	// leaves either the old or the new trailer discoverable.
	if err := writeFull(ctx, a.store, encodeEndOfCentralDirectory(eocd), int64(offset)); err != nil {
		return fmt.Errorf("zipappend: writing end of central directory: %w", err)
	}
	a.state = stateFinalized
	return nil
}

// Close closes the underlying store and releases the directory
// buffers. It does not write anything; call Finalize first.
func (a *Archive) Close() error {
	if a.state == stateClosed {
		return nil
	}
	a.state = stateClosed
	a.existingDirectory = nil
	a.pending = nil
	return a.store.Close()
}

// Info describes the archive's trailer state.
type Info struct {
	// Records is the number of central directory records the archive
	// will have after Finalize.
	Records uint64
	// DirectorySize and DirectoryOffset describe the central directory
	// region.
	DirectorySize   uint64
	DirectoryOffset uint64
	// Zip64 reports whether the archive uses the ZIP64 format.
	Zip64 bool
	// Comment is the archive comment.
	Comment string
}

// Info returns the current trailer state. On a freshly opened existing
// archive it describes the archive as stored; after appends it reflects
// the trailer Finalize will write.
func (a *Archive) Info() Info {
	info := Info{Comment: a.comment}
	if a.zip64 != nil {
		info.Zip64 = true
		info.Records = a.zip64.records
		info.DirectorySize = a.zip64.directorySize
		info.DirectoryOffset = a.zip64.directoryOffset
	} else if a.eocd != nil {
		info.Records = uint64(a.eocd.records)
		info.DirectorySize = uint64(a.eocd.directorySize)
		info.DirectoryOffset = uint64(a.eocd.directoryOffset)
	}
	return info
}

func checkedAdd(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, ErrArchiveTooLarge
	}
	return s, nil
}
