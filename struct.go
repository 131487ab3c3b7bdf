// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipappend

import (
	"os"
	"time"
)

const (
	fileHeaderSignature      = 0x04034b50
	directoryHeaderSignature = 0x02014b50
	directoryEndSignature    = 0x06054b50
	directory64LocSignature  = 0x07064b50
	directory64EndSignature  = 0x06064b50
	fileHeaderLen            = 30 // + filename + extra
	directoryHeaderLen       = 46 // + filename + extra + comment
	directoryEndLen          = 22 // + comment
	directory64LocLen        = 20 //
	directory64EndLen        = 56 // + extensible data

	// Constants for the first byte in CreatorVersion.
	creatorUnix = 3

	// Version numbers.
	zipVersion10 = 10 // 1.0 (stored entries, no extensions)
	zipVersion45 = 45 // 4.5 (reads and writes zip64 archives)
	zipVersion63 = 63 // 6.3 (APPNOTE version the directory headers declare)

	// Limits for non zip64 archives. Values at or above these limits
	// are moved to the zip64 structures and the narrow field holds the
	// limit itself as an overflow marker.
	uint16max = (1 << 16) - 1
	uint32max = (1 << 32) - 1

	maxCommentLen = uint16max

	// Zip64 extended information extra field.
	zip64ExtraID = 0x0001
)

// zip64Extra is the ZIP64 extended-information extra field of a local
// file header or central directory header. It carries the wide form of
// whichever narrow header fields hold the overflow marker, and only
// those, in header order.
type zip64Extra struct {
	uncompressedSize uint64
	compressedSize   uint64
	offset           uint64
	hasSizes         bool
	hasOffset        bool
}

// sizesExtra builds the extra field of a local file header.
// Sizes are carried only when they do not fit the 32 bit fields.
func sizesExtra(fileSize uint64) zip64Extra {
	var e zip64Extra
	if fileSize >= uint32max {
		e.hasSizes = true
		e.uncompressedSize = fileSize
		e.compressedSize = fileSize
	}
	return e
}

// directoryExtra builds the extra field of a central directory header
// from the local header's extra plus the entry's local header offset.
func directoryExtra(lfhExtra zip64Extra, offset uint64) zip64Extra {
	e := lfhExtra
	if offset >= uint32max {
		e.hasOffset = true
		e.offset = offset
	}
	return e
}

func (e *zip64Extra) dataSize() uint16 {
	var n uint16
	if e.hasSizes {
		n += 16
	}
	if e.hasOffset {
		n += 8
	}
	return n
}

// totalSize is the encoded length including the header ID and size
// prefix, or 0 when no field needs the wide form.
func (e *zip64Extra) totalSize() uint16 {
	n := e.dataSize()
	if n == 0 {
		return 0
	}
	return n + 4
}

// localFileHeader prefixes each stored entry.
type localFileHeader struct {
	readerVersion    uint16
	flags            uint16
	method           uint16
	modifiedTime     uint16
	modifiedDate     uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	name             string
	extra            zip64Extra
}

func newLocalFileHeader(name string, crc uint32, fileSize uint64, modified time.Time) localFileHeader {
	h := localFileHeader{
		crc32: crc,
		name:  name,
	}
	h.modifiedDate, h.modifiedTime = timeToMsDosTime(modified)
	if fileSize >= uint32max {
		h.compressedSize = uint32max
		h.uncompressedSize = uint32max
	} else {
		h.compressedSize = uint32(fileSize)
		h.uncompressedSize = uint32(fileSize)
	}
	h.extra = sizesExtra(fileSize)
	if h.extra.totalSize() == 0 {
		h.readerVersion = zipVersion10
	} else {
		h.readerVersion = zipVersion45
	}
	return h
}

// size is the encoded length of the header including name and extra.
func (h *localFileHeader) size() uint64 {
	return fileHeaderLen + uint64(len(h.name)) + uint64(h.extra.totalSize())
}

// payloadSize is the wide compressed size regardless of whether the
// narrow field holds the overflow marker.
func (h *localFileHeader) payloadSize() uint64 {
	if h.compressedSize == uint32max && h.extra.hasSizes {
		return h.extra.compressedSize
	}
	return uint64(h.compressedSize)
}

// directoryHeader is a central directory file header.
type directoryHeader struct {
	creatorVersion   uint16
	readerVersion    uint16
	flags            uint16
	method           uint16
	modifiedTime     uint16
	modifiedDate     uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	internalAttrs    uint16
	externalAttrs    uint32
	offset           uint32
	name             string
	extra            zip64Extra
	comment          string
}

func newDirectoryHeader(lfh *localFileHeader, mode os.FileMode, lfhOffset uint64) directoryHeader {
	h := directoryHeader{
		creatorVersion:   creatorUnix<<8 | zipVersion63,
		flags:            lfh.flags,
		method:           lfh.method,
		modifiedTime:     lfh.modifiedTime,
		modifiedDate:     lfh.modifiedDate,
		crc32:            lfh.crc32,
		compressedSize:   lfh.compressedSize,
		uncompressedSize: lfh.uncompressedSize,
		externalAttrs:    fileModeToUnixMode(mode) << 16,
		name:             lfh.name,
	}
	if lfhOffset >= uint32max {
		h.offset = uint32max
	} else {
		h.offset = uint32(lfhOffset)
	}
	h.extra = directoryExtra(lfh.extra, lfhOffset)
	if h.extra.totalSize() == 0 {
		h.readerVersion = zipVersion10
	} else {
		h.readerVersion = zipVersion45
	}
	return h
}

func (h *directoryHeader) size() uint64 {
	return directoryHeaderLen + uint64(len(h.name)) + uint64(h.extra.totalSize()) + uint64(len(h.comment))
}

// trueOffset is the wide local header offset regardless of whether the
// narrow field holds the overflow marker.
func (h *directoryHeader) trueOffset() uint64 {
	if h.offset == uint32max && h.extra.hasOffset {
		return h.extra.offset
	}
	return uint64(h.offset)
}

// endOfCentralDirectory is the terminal record of a classic archive.
// Narrow fields hold the overflow marker once the archive has been
// promoted to zip64; the wide values then live in the zip64 record.
type endOfCentralDirectory struct {
	diskNumber          uint16
	directoryDiskNumber uint16
	recordsOnDisk       uint16
	records             uint16
	directorySize       uint32
	directoryOffset     uint32
	comment             string
}

func (e *endOfCentralDirectory) size() uint64 {
	return directoryEndLen + uint64(len(e.comment))
}

// newEndOfCentralDirectory builds the trailer for a brand new archive
// holding a single entry. It reports whether the entry already forces
// the zip64 format.
func newEndOfCentralDirectory(lfh *localFileHeader, dh *directoryHeader) (endOfCentralDirectory, bool) {
	e := endOfCentralDirectory{
		recordsOnDisk: 1,
		records:       1,
	}
	if lfh.compressedSize == uint32max || lfh.size()+uint64(lfh.compressedSize) >= uint32max {
		e.directorySize = uint32max
		e.directoryOffset = uint32max
		return e, true
	}
	e.directorySize = uint32(dh.size())
	e.directoryOffset = uint32(lfh.size()) + lfh.compressedSize
	return e, false
}

// directoryCounters snapshots the wide central directory totals of a
// classic trailer just before promotion to zip64.
type directoryCounters struct {
	records uint64
	size    uint64
	offset  uint64
}

// zip64EndOfCentralDirectory carries the wide form of the trailer.
type zip64EndOfCentralDirectory struct {
	creatorVersion      uint16
	readerVersion       uint16
	diskNumber          uint32
	directoryDiskNumber uint32
	recordsOnDisk       uint64
	records             uint64
	directorySize       uint64
	directoryOffset     uint64
}

// newZip64EndOfCentralDirectory builds the zip64 trailer at the moment
// of promotion. Fields holding the overflow marker in e are recovered
// from the pre-promotion counters plus the delta contributed by the
// entry being appended; all other fields carry over from e.
func newZip64EndOfCentralDirectory(e *endOfCentralDirectory, lfh *localFileHeader, dh *directoryHeader, prev directoryCounters) zip64EndOfCentralDirectory {
	z := zip64EndOfCentralDirectory{
		creatorVersion:      creatorUnix<<8 | zipVersion63,
		readerVersion:       zipVersion45,
		diskNumber:          uint32(e.diskNumber),
		directoryDiskNumber: uint32(e.directoryDiskNumber),
	}
	if e.recordsOnDisk == uint16max {
		z.recordsOnDisk = prev.records + 1
	} else {
		z.recordsOnDisk = uint64(e.recordsOnDisk)
	}
	if e.records == uint16max {
		z.records = prev.records + 1
	} else {
		z.records = uint64(e.records)
	}
	if e.directorySize == uint32max {
		z.directorySize = prev.size + dh.size()
	} else {
		z.directorySize = uint64(e.directorySize)
	}
	if e.directoryOffset == uint32max {
		z.directoryOffset = prev.offset + lfh.size() + lfh.payloadSize()
	} else {
		z.directoryOffset = uint64(e.directoryOffset)
	}
	return z
}

// zip64EndOfCentralDirectoryLocator points readers at the zip64 trailer.
type zip64EndOfCentralDirectoryLocator struct {
	directoryDiskNumber uint32
	offset              uint64
	totalDisks          uint32
}

func newZip64Locator(e *endOfCentralDirectory, z *zip64EndOfCentralDirectory) zip64EndOfCentralDirectoryLocator {
	l := zip64EndOfCentralDirectoryLocator{
		totalDisks: 1,
	}
	if e.directoryOffset == uint32max {
		l.offset = z.directoryOffset
	} else {
		l.offset = uint64(e.directoryOffset)
	}
	if e.directorySize == uint32max {
		l.offset += z.directorySize
	} else {
		l.offset += uint64(e.directorySize)
	}
	return l
}

// saturatingAdd16 increments a classic record count, clamping at the
// overflow marker once the true count no longer fits.
func saturatingAdd16(v uint16) uint16 {
	if uint32(v)+1 >= uint16max {
		return uint16max
	}
	return v + 1
}

// timeToMsDosTime converts a time.Time to an MS-DOS date and time.
// The resolution is 2s and years outside [1980, 2107] wrap silently.
// See: https://msdn.microsoft.com/en-us/library/ms724274(v=VS.85).aspx
func timeToMsDosTime(t time.Time) (fDate uint16, fTime uint16) {
	fDate = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	fTime = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return
}

// msDosTimeToTime converts an MS-DOS date and time to a time.Time.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0,
		time.Local,
	)
}

const (
	// Unix constants. The specification doesn't mention them,
	// but these seem to be the values agreed on by tools.
	s_IFMT   = 0xf000
	s_IFSOCK = 0xc000
	s_IFLNK  = 0xa000
	s_IFREG  = 0x8000
	s_IFBLK  = 0x6000
	s_IFDIR  = 0x4000
	s_IFCHR  = 0x2000
	s_IFIFO  = 0x1000
	s_ISUID  = 0x800
	s_ISGID  = 0x400
	s_ISVTX  = 0x200
)

func fileModeToUnixMode(mode os.FileMode) uint32 {
	var m uint32
	switch mode & os.ModeType {
	default:
		m = s_IFREG
	case os.ModeDir:
		m = s_IFDIR
	case os.ModeSymlink:
		m = s_IFLNK
	case os.ModeNamedPipe:
		m = s_IFIFO
	case os.ModeSocket:
		m = s_IFSOCK
	case os.ModeDevice:
		if mode&os.ModeCharDevice != 0 {
			m = s_IFCHR
		} else {
			m = s_IFBLK
		}
	}
	if mode&os.ModeSetuid != 0 {
		m |= s_ISUID
	}
	if mode&os.ModeSetgid != 0 {
		m |= s_ISGID
	}
	if mode&os.ModeSticky != 0 {
		m |= s_ISVTX
	}
	return m | uint32(mode&0777)
}

func unixModeToFileMode(m uint32) os.FileMode {
	mode := os.FileMode(m & 0777)
	switch m & s_IFMT {
	case s_IFBLK:
		mode |= os.ModeDevice
	case s_IFCHR:
		mode |= os.ModeDevice | os.ModeCharDevice
	case s_IFDIR:
		mode |= os.ModeDir
	case s_IFIFO:
		mode |= os.ModeNamedPipe
	case s_IFLNK:
		mode |= os.ModeSymlink
	case s_IFREG:
		// nothing to do
	case s_IFSOCK:
		mode |= os.ModeSocket
	}
	if m&s_ISGID != 0 {
		mode |= os.ModeSetgid
	}
	if m&s_ISUID != 0 {
		mode |= os.ModeSetuid
	}
	if m&s_ISVTX != 0 {
		mode |= os.ModeSticky
	}
	return mode
}
