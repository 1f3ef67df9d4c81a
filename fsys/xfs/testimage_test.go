package xfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test images use 512 byte blocks and directory blocks, 256 byte inodes
// (two per block) and a single 64 block allocation group, so an inode
// number is simply agbno<<1 | slot and a filesystem block number is the
// block's index in the image.
const (
	testBlockSize = 512
	testInodeSize = 256
	testAGBlocks  = 64
	testRootIno   = 8

	modeTestDir = modeDir | 0o755
	modeTestReg = modeReg | 0o644
)

var be = binary.BigEndian

type variant struct {
	name  string
	v5    bool
	ftype bool
}

var variants = []variant{
	{name: "v4", v5: false, ftype: false},
	{name: "v4 ftype", v5: false, ftype: true},
	{name: "v5", v5: true, ftype: true},
}

type testImage struct {
	t   *testing.T
	v   variant
	img []byte
}

func newTestImage(t *testing.T, v variant) *testImage {
	t.Helper()
	b := &testImage{t: t, v: v, img: make([]byte, testAGBlocks*testBlockSize)}

	sb := b.img[:superblockSize]
	be.PutUint32(sb[0:], xfsMagic)
	be.PutUint32(sb[4:], testBlockSize)
	be.PutUint64(sb[8:], testAGBlocks)
	copy(sb[32:48], []byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	be.PutUint64(sb[56:], testRootIno)
	be.PutUint32(sb[84:], testAGBlocks)
	be.PutUint32(sb[88:], 1)
	be.PutUint16(sb[102:], testBlockSize)
	be.PutUint16(sb[104:], testInodeSize)
	be.PutUint16(sb[106:], testBlockSize/testInodeSize)
	copy(sb[108:120], "testfs")
	sb[120] = 9 // blocklog
	sb[122] = 8 // inodelog
	sb[123] = 1 // inopblog
	sb[124] = 6 // agblklog
	be.PutUint64(sb[128:], 64)
	be.PutUint64(sb[136:], 20)

	switch {
	case v.v5:
		be.PutUint16(sb[100:], 5)
		if v.ftype {
			be.PutUint32(sb[216:], incompatFType)
		}
	case v.ftype:
		be.PutUint16(sb[100:], 4|versionMoreBits)
		be.PutUint32(sb[200:], version2FType)
	default:
		be.PutUint16(sb[100:], 4)
	}

	return b
}

func (b *testImage) coreSize() int {
	if b.v.v5 {
		return 176
	}
	return 100
}

func (b *testImage) dataHdrSize() int {
	if b.v.v5 {
		return 64
	}
	return 16
}

func (b *testImage) block(fsb int) []byte {
	return b.img[fsb*testBlockSize : (fsb+1)*testBlockSize]
}

// putInode writes an inode core followed by its data fork.
func (b *testImage) putInode(ino uint64, mode uint16, format uint8, size uint64, nextents uint32, fork []byte) {
	b.t.Helper()
	off := int(ino>>1)*testBlockSize + int(ino&1)*testInodeSize
	d := b.img[off : off+testInodeSize]
	require.LessOrEqual(b.t, len(fork), testInodeSize-b.coreSize(), "fork of inode %d", ino)

	be.PutUint16(d[0:], inodeMagic)
	be.PutUint16(d[2:], mode)
	d[4] = 2
	if b.v.v5 {
		d[4] = 3
	}
	d[5] = format
	be.PutUint32(d[8:], 1000)
	be.PutUint32(d[12:], 100)
	be.PutUint32(d[16:], 1)
	be.PutUint32(d[40:], 1700000000)
	be.PutUint64(d[56:], size)
	be.PutUint32(d[76:], nextents)
	copy(d[b.coreSize():], fork)
}

func (b *testImage) putLocalFile(ino uint64, data string) {
	b.putInode(ino, modeTestReg, fmtLocal, uint64(len(data)), 0, []byte(data))
}

type testExtent struct {
	fileOff, startBlock, count uint64
}

func (b *testImage) putExtentInode(ino uint64, mode uint16, size uint64, exts ...testExtent) {
	var fork []byte
	for _, e := range exts {
		fork = append(fork, encodeExtent(e.fileOff, e.startBlock, e.count)...)
	}
	b.putInode(ino, mode, fmtExtents, size, uint32(len(exts)), fork)
}

func encodeExtent(fileOff, startBlock, count uint64) []byte {
	rec := make([]byte, bmbtRecSize)
	be.PutUint64(rec[0:], fileOff<<9|startBlock>>43)
	be.PutUint64(rec[8:], startBlock<<21|count)
	return rec
}

// sfEntry is one short form entry.
type sfEntry struct {
	name string
	ino  uint64
}

// shortForm encodes a short form directory body. The count byte always
// holds the number of entries; i8count is set when wide is requested.
func (b *testImage) shortForm(parent uint64, wide bool, ents ...sfEntry) []byte {
	put := func(buf []byte, v uint64) []byte {
		if wide {
			return be.AppendUint64(buf, v)
		}
		return be.AppendUint32(buf, uint32(v))
	}

	buf := []byte{byte(len(ents)), 0}
	if wide {
		buf[1] = byte(len(ents))
	}
	buf = put(buf, parent)

	off := uint16(b.dataHdrSize())
	for _, e := range ents {
		buf = append(buf, byte(len(e.name)))
		buf = be.AppendUint16(buf, off)
		buf = append(buf, e.name...)
		if b.v.ftype {
			buf = append(buf, 1)
		}
		buf = put(buf, e.ino)
		off += 16
	}
	return buf
}

func (b *testImage) putShortFormDir(ino, parent uint64, wide bool, ents ...sfEntry) {
	body := b.shortForm(parent, wide, ents...)
	b.putInode(ino, modeTestDir, fmtLocal, uint64(len(body)), 0, body)
}

// dataBlock lays out entries and free records in a directory data block.
type dataBlock struct {
	img *testImage
	buf []byte
	off int
}

func (b *testImage) newDataBlock(fsb int, magic uint32) *dataBlock {
	buf := b.block(fsb)
	be.PutUint32(buf[0:], magic)
	return &dataBlock{img: b, buf: buf, off: b.dataHdrSize()}
}

// entry appends a named entry and returns its byte offset.
func (d *dataBlock) entry(name string, ino uint64) int {
	start := d.off
	n := 9 + len(name) + 2
	if d.img.v.ftype {
		n++
	}
	n = (n + 7) &^ 7

	rec := d.buf[start : start+n]
	be.PutUint64(rec[0:], ino)
	rec[8] = byte(len(name))
	copy(rec[9:], name)
	if d.img.v.ftype {
		rec[9+len(name)] = 1
	}
	be.PutUint16(rec[n-2:], uint16(start))
	d.off += n
	return start
}

// unused appends a free record of n bytes.
func (d *dataBlock) unused(n int) {
	rec := d.buf[d.off : d.off+n]
	be.PutUint16(rec[0:], dataFreeTag)
	be.PutUint16(rec[2:], uint16(n))
	be.PutUint16(rec[n-2:], uint16(d.off))
	d.off += n
}

func (b *testImage) blockMagic() uint32 {
	if b.v.v5 {
		return 0x58444233
	}
	return 0x58443242
}

func (b *testImage) dataMagic() uint32 {
	if b.v.v5 {
		return 0x58444433
	}
	return 0x58443244
}

// putBlockDir writes a single block directory at fsb. fill adds the data
// records; the tail claims count leaf entries of which stale are stale.
func (b *testImage) putBlockDir(ino uint64, fsb int, count, stale uint32, fill func(*dataBlock)) {
	d := b.newDataBlock(fsb, b.blockMagic())
	fill(d)

	tail := d.buf[testBlockSize-blockTailSize:]
	be.PutUint32(tail[0:], count)
	be.PutUint32(tail[4:], stale)

	leafStart := testBlockSize - blockTailSize - int(count)*leafEntrySize
	require.LessOrEqual(b.t, d.off, leafStart, "block directory %d overflows", ino)
	if free := leafStart - d.off; free >= 8 {
		d.unused(free)
	}

	b.putExtentInode(ino, modeTestDir, testBlockSize, testExtent{0, uint64(fsb), 1})
}

// dataPtr encodes a leaf address for byte off of directory block db.
func dataPtr(db, off int) uint32 {
	return uint32((db*testBlockSize + off) >> 3)
}

// putLeafBlock writes a single leaf block holding the given addresses.
func (b *testImage) putLeafBlock(fsb int, addrs ...uint32) {
	buf := b.block(fsb)
	be.PutUint16(buf[8:], 0xd2f1)
	countOff, hdr := 12, 16
	if b.v.v5 {
		be.PutUint16(buf[8:], 0x3df1)
		countOff, hdr = 56, 64
	}
	be.PutUint16(buf[countOff:], uint16(len(addrs)))
	for i, a := range addrs {
		e := buf[hdr+i*leafEntrySize:]
		be.PutUint32(e[0:], uint32(0x1000+i))
		be.PutUint32(e[4:], a)
	}
}

func leafFileOff() uint64 { return leafOffsetBytes / testBlockSize }

func (b *testImage) mount() *FS {
	b.t.Helper()
	f, err := Mount(bytes.NewReader(b.img), int64(len(b.img)), Options{})
	require.NoError(b.t, err)
	require.NotNil(b.t, f)
	return f
}

var errMedia = errors.New("media error")

// faultyImage fails every read that touches filesystem block bad.
type faultyImage struct {
	img []byte
	bad int64
}

func (r faultyImage) ReadAt(p []byte, off int64) (int, error) {
	start := r.bad * testBlockSize
	if off < start+testBlockSize && off+int64(len(p)) > start {
		return 0, errMedia
	}
	return bytes.NewReader(r.img).ReadAt(p, off)
}

// mountFaulty mounts the image with reads of block bad failing.
func (b *testImage) mountFaulty(bad int64) *FS {
	b.t.Helper()
	f, err := Mount(faultyImage{img: b.img, bad: bad}, int64(len(b.img)), Options{})
	require.NoError(b.t, err)
	return f
}

// countingBlocks tracks buffer fetches and releases.
type countingBlocks struct {
	inner    blockSource
	fetched  int
	released int
}

func (c *countingBlocks) readBlocks(fsb uint64, count uint32) (*buffer, error) {
	buf, err := c.inner.readBlocks(fsb, count)
	if err != nil {
		return nil, err
	}
	c.fetched++
	release := buf.release
	buf.release = func(data []byte) {
		c.released++
		if release != nil {
			release(data)
		}
	}
	return buf, nil
}

func countBlocks(f *FS) *countingBlocks {
	c := &countingBlocks{inner: f.blocks}
	f.blocks = c
	return c
}
