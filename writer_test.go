// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipappend

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func le16(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off:]) }
func le32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
func le64(b []byte, off int) uint64 { return binary.LittleEndian.Uint64(b[off:]) }

func TestEncodeLocalFileHeader(t *testing.T) {
	mtime := time.Date(2020, 6, 1, 12, 0, 0, 0, time.Local)
	h := newLocalFileHeader("hi.txt", 0xcafebabe, 9, mtime)
	buf := encodeLocalFileHeader(&h)

	require.Len(t, buf, 36)
	assert.Equal(t, uint32(fileHeaderSignature), le32(buf, 0))
	assert.Equal(t, uint16(zipVersion10), le16(buf, 4))
	assert.Equal(t, uint16(0), le16(buf, 6), "general purpose bit flag")
	assert.Equal(t, uint16(0), le16(buf, 8), "compression method is store")
	assert.Equal(t, h.modifiedTime, le16(buf, 10))
	assert.Equal(t, h.modifiedDate, le16(buf, 12))
	assert.Equal(t, uint32(0xcafebabe), le32(buf, 14))
	assert.Equal(t, uint32(9), le32(buf, 18))
	assert.Equal(t, uint32(9), le32(buf, 22))
	assert.Equal(t, uint16(6), le16(buf, 26))
	assert.Equal(t, uint16(0), le16(buf, 28))
	assert.Equal(t, "hi.txt", string(buf[30:36]))
}

func TestEncodeLocalFileHeaderZip64(t *testing.T) {
	mtime := time.Date(2020, 6, 1, 12, 0, 0, 0, time.Local)
	h := newLocalFileHeader("big.dat", 1, uint32max, mtime)
	buf := encodeLocalFileHeader(&h)

	require.Len(t, buf, 30+7+20)
	assert.Equal(t, uint16(zipVersion45), le16(buf, 4))
	assert.Equal(t, uint32(uint32max), le32(buf, 18), "compressed size overflow marker")
	assert.Equal(t, uint32(uint32max), le32(buf, 22), "uncompressed size overflow marker")
	assert.Equal(t, uint16(20), le16(buf, 28), "extra length")

	extra := buf[30+7:]
	assert.Equal(t, uint16(zip64ExtraID), le16(extra, 0))
	assert.Equal(t, uint16(16), le16(extra, 2))
	assert.Equal(t, uint64(uint32max), le64(extra, 4), "uncompressed size")
	assert.Equal(t, uint64(uint32max), le64(extra, 12), "compressed size")
}

func TestEncodeDirectoryHeader(t *testing.T) {
	mtime := time.Date(2020, 6, 1, 12, 0, 0, 0, time.Local)
	lfh := newLocalFileHeader("hi.txt", 7, 9, mtime)
	h := newDirectoryHeader(&lfh, 0644, 1000)
	buf := encodeDirectoryHeader(&h)

	require.Len(t, buf, 52)
	assert.Equal(t, uint32(directoryHeaderSignature), le32(buf, 0))
	assert.Equal(t, uint16(creatorUnix<<8|zipVersion63), le16(buf, 4))
	assert.Equal(t, uint16(zipVersion10), le16(buf, 6))
	assert.Equal(t, uint32(7), le32(buf, 16))
	assert.Equal(t, uint32(9), le32(buf, 20))
	assert.Equal(t, uint32(9), le32(buf, 24))
	assert.Equal(t, uint16(6), le16(buf, 28), "name length")
	assert.Equal(t, uint16(0), le16(buf, 30), "extra length")
	assert.Equal(t, uint16(0), le16(buf, 32), "comment length")
	assert.Equal(t, uint16(0), le16(buf, 34), "disk number start")
	assert.Equal(t, uint16(0), le16(buf, 36), "internal attributes")
	assert.Equal(t, uint32(s_IFREG|0644)<<16, le32(buf, 38))
	assert.Equal(t, uint32(1000), le32(buf, 42))
	assert.Equal(t, "hi.txt", string(buf[46:52]))
}

// An entry whose sizes fit but whose local header lies past 4 GiB gets
// the offset-only form of the zip64 extra field.
func TestEncodeDirectoryHeaderOffsetOnly(t *testing.T) {
	mtime := time.Date(2020, 6, 1, 12, 0, 0, 0, time.Local)
	lfh := newLocalFileHeader("small.txt", 7, 9, mtime)
	h := newDirectoryHeader(&lfh, 0644, 1<<33)
	buf := encodeDirectoryHeader(&h)

	require.Len(t, buf, 46+9+12)
	assert.Equal(t, uint16(zipVersion45), le16(buf, 6))
	assert.Equal(t, uint32(9), le32(buf, 20), "sizes stay narrow")
	assert.Equal(t, uint16(12), le16(buf, 30), "extra length")
	assert.Equal(t, uint32(uint32max), le32(buf, 42), "offset overflow marker")

	extra := buf[46+9:]
	assert.Equal(t, uint16(zip64ExtraID), le16(extra, 0))
	assert.Equal(t, uint16(8), le16(extra, 2))
	assert.Equal(t, uint64(1)<<33, le64(extra, 4), "offset occupies the whole body")
}

func TestEndOfCentralDirectoryRoundTrip(t *testing.T) {
	e := endOfCentralDirectory{
		recordsOnDisk:   3,
		records:         3,
		directorySize:   156,
		directoryOffset: 4096,
		comment:         "hello",
	}
	buf := encodeEndOfCentralDirectory(&e)
	require.Len(t, buf, directoryEndLen+5)
	assert.Equal(t, uint32(directoryEndSignature), le32(buf, 0))
	assert.Equal(t, uint16(5), le16(buf, 20))
	assert.Equal(t, e, parseEndOfCentralDirectory(buf))
}

func TestZip64EndOfCentralDirectoryRoundTrip(t *testing.T) {
	z := zip64EndOfCentralDirectory{
		creatorVersion:  creatorUnix<<8 | zipVersion63,
		readerVersion:   zipVersion45,
		recordsOnDisk:   70000,
		records:         70000,
		directorySize:   3640000,
		directoryOffset: 1 << 33,
	}
	buf := encodeZip64EndOfCentralDirectory(&z)
	require.Len(t, buf, directory64EndLen)
	assert.Equal(t, uint32(directory64EndSignature), le32(buf, 0))
	assert.Equal(t, uint64(directory64EndLen-12), le64(buf, 4))
	assert.Equal(t, z, parseZip64EndOfCentralDirectory(buf))
}

func TestZip64LocatorRoundTrip(t *testing.T) {
	l := zip64EndOfCentralDirectoryLocator{
		offset:     1<<33 + 3640000,
		totalDisks: 1,
	}
	buf := encodeZip64Locator(&l)
	require.Len(t, buf, directory64LocLen)
	assert.Equal(t, uint32(directory64LocSignature), le32(buf, 0))
	assert.Equal(t, l, parseZip64Locator(buf))
}
