// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipappend

import (
	"encoding/binary"
)

// The encoders below are pure functions from record values to bytes.
// Every integer is little-endian at the fixed offsets defined by the
// PKWARE APPNOTE; no encoder performs I/O or consults archive state.

type writeBuf []byte

func (b *writeBuf) uint16(v uint16) {
	binary.LittleEndian.PutUint16(*b, v)
	*b = (*b)[2:]
}

func (b *writeBuf) uint32(v uint32) {
	binary.LittleEndian.PutUint32(*b, v)
	*b = (*b)[4:]
}

func (b *writeBuf) uint64(v uint64) {
	binary.LittleEndian.PutUint64(*b, v)
	*b = (*b)[8:]
}

func (b *writeBuf) bytes(v []byte) {
	n := copy(*b, v)
	*b = (*b)[n:]
}

// encode appends the extra field in its minimal form: only the fields
// whose narrow header counterparts hold the overflow marker, in header
// order. A zero extra encodes to nothing.
func (e *zip64Extra) encode(b *writeBuf) {
	if e.totalSize() == 0 {
		return
	}
	b.uint16(zip64ExtraID)
	b.uint16(e.dataSize())
	if e.hasSizes {
		b.uint64(e.uncompressedSize)
		b.uint64(e.compressedSize)
	}
	if e.hasOffset {
		b.uint64(e.offset)
	}
}

func encodeLocalFileHeader(h *localFileHeader) []byte {
	buf := make([]byte, h.size())
	b := writeBuf(buf)
	b.uint32(fileHeaderSignature)
	b.uint16(h.readerVersion)
	b.uint16(h.flags)
	b.uint16(h.method)
	b.uint16(h.modifiedTime)
	b.uint16(h.modifiedDate)
	b.uint32(h.crc32)
	b.uint32(h.compressedSize)
	b.uint32(h.uncompressedSize)
	b.uint16(uint16(len(h.name)))
	b.uint16(h.extra.totalSize())
	b.bytes([]byte(h.name))
	h.extra.encode(&b)
	return buf
}

func encodeDirectoryHeader(h *directoryHeader) []byte {
	buf := make([]byte, h.size())
	b := writeBuf(buf)
	b.uint32(directoryHeaderSignature)
	b.uint16(h.creatorVersion)
	b.uint16(h.readerVersion)
	b.uint16(h.flags)
	b.uint16(h.method)
	b.uint16(h.modifiedTime)
	b.uint16(h.modifiedDate)
	b.uint32(h.crc32)
	b.uint32(h.compressedSize)
	b.uint32(h.uncompressedSize)
	b.uint16(uint16(len(h.name)))
	b.uint16(h.extra.totalSize())
	b.uint16(uint16(len(h.comment)))
	b.uint16(0) // disk number start
	b.uint16(h.internalAttrs)
	b.uint32(h.externalAttrs)
	b.uint32(h.offset)
	b.bytes([]byte(h.name))
	h.extra.encode(&b)
	b.bytes([]byte(h.comment))
	return buf
}

func encodeEndOfCentralDirectory(e *endOfCentralDirectory) []byte {
	buf := make([]byte, e.size())
	b := writeBuf(buf)
	b.uint32(directoryEndSignature)
	b.uint16(e.diskNumber)
	b.uint16(e.directoryDiskNumber)
	b.uint16(e.recordsOnDisk)
	b.uint16(e.records)
	b.uint32(e.directorySize)
	b.uint32(e.directoryOffset)
	b.uint16(uint16(len(e.comment)))
	b.bytes([]byte(e.comment))
	return buf
}

func encodeZip64EndOfCentralDirectory(z *zip64EndOfCentralDirectory) []byte {
	buf := make([]byte, directory64EndLen)
	b := writeBuf(buf)
	b.uint32(directory64EndSignature)
	b.uint64(directory64EndLen - 12) // length minus signature (uint32) and length fields (uint64)
	b.uint16(z.creatorVersion)
	b.uint16(z.readerVersion)
	b.uint32(z.diskNumber)
	b.uint32(z.directoryDiskNumber)
	b.uint64(z.recordsOnDisk)
	b.uint64(z.records)
	b.uint64(z.directorySize)
	b.uint64(z.directoryOffset)
	return buf
}

func encodeZip64Locator(l *zip64EndOfCentralDirectoryLocator) []byte {
	buf := make([]byte, directory64LocLen)
	b := writeBuf(buf)
	b.uint32(directory64LocSignature)
	b.uint32(l.directoryDiskNumber)
	b.uint64(l.offset)
	b.uint32(l.totalDisks)
	return buf
}
