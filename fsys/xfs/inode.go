package xfs

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"time"
)

const (
	inodeMagic = 0x494e // "IN"

	// Data fork formats
	fmtDev     = 0
	fmtLocal   = 1
	fmtExtents = 2
	fmtBtree   = 3

	// File mode type bits
	modeFmt  = 0xF000
	modeFIFO = 0x1000
	modeChr  = 0x2000
	modeDir  = 0x4000
	modeBlk  = 0x6000
	modeReg  = 0x8000
	modeLnk  = 0xA000
	modeSock = 0xC000

	bmbtRecSize = 16
)

// inodeCore is the decoded on-disk inode core plus its data fork bytes.
type inodeCore struct {
	mode     uint16
	version  uint8
	format   uint8
	uid      uint32
	gid      uint32
	nlink    uint32
	atime    time.Time
	mtime    time.Time
	ctime    time.Time
	size     uint64
	nblocks  uint64
	nextents uint32
	forkOff  uint8
	fork     []byte
}

// extent is one decoded BMBT record. Offsets and lengths are in
// filesystem blocks.
type extent struct {
	fileOff    uint64
	startBlock uint64
	count      uint64
	unwritten  bool
}

func (c *inodeCore) isDir() bool { return c.mode&modeFmt == modeDir }

// inodeOffset locates an inode within the image. Inode numbers encode the
// allocation group, the block within the group and the slot within the block.
func (f *FS) inodeOffset(ino uint64) (int64, error) {
	agShift := uint(f.sb.agBlkLog) + uint(f.sb.inopbLog)
	agno := ino >> agShift
	agino := ino & (1<<agShift - 1)
	agbno := agino >> f.sb.inopbLog
	slot := agino & (1<<f.sb.inopbLog - 1)

	if ino == 0 || agno >= uint64(f.sb.agCount) || agbno >= uint64(f.sb.agBlocks) {
		return 0, fmt.Errorf("invalid inode number %d", ino)
	}

	block := agno*uint64(f.sb.agBlocks) + agbno
	return int64(block)<<f.sb.blockLog + int64(slot)*int64(f.sb.inodeSize), nil
}

// readInodeCore fetches and decodes the core of the given inode.
func (f *FS) readInodeCore(ino uint64) (*inodeCore, error) {
	off, err := f.inodeOffset(ino)
	if err != nil {
		return nil, err
	}

	data := make([]byte, f.sb.inodeSize)
	if _, err := f.r.ReadAt(data, off); err != nil {
		return nil, fmt.Errorf("reading inode %d: %w", ino, err)
	}

	return f.parseInodeCore(ino, data)
}

func (f *FS) parseInodeCore(ino uint64, data []byte) (*inodeCore, error) {
	be := binary.BigEndian
	if magic := be.Uint16(data[0:2]); magic != inodeMagic {
		return nil, fmt.Errorf("inode %d: bad magic %#04x: %w", ino, magic, ErrCorrupt)
	}

	c := &inodeCore{
		mode:     be.Uint16(data[2:4]),
		version:  data[4],
		format:   data[5],
		uid:      be.Uint32(data[8:12]),
		gid:      be.Uint32(data[12:16]),
		atime:    decodeTimestamp(data[32:40]),
		mtime:    decodeTimestamp(data[40:48]),
		ctime:    decodeTimestamp(data[48:56]),
		size:     be.Uint64(data[56:64]),
		nblocks:  be.Uint64(data[64:72]),
		nextents: be.Uint32(data[76:80]),
		forkOff:  data[82],
	}

	// Version 1 inodes only have the 16-bit link count
	if c.version == 1 {
		c.nlink = uint32(be.Uint16(data[6:8]))
	} else {
		c.nlink = be.Uint32(data[16:20])
	}

	coreSize := 100
	if c.version >= 3 {
		coreSize = 176
	}
	if coreSize != f.geo.inodeCoreSize {
		return nil, fmt.Errorf("inode %d: version %d on a v%d filesystem: %w", ino, c.version, f.geo.version, ErrCorrupt)
	}

	c.fork = data[coreSize:]
	if c.forkOff != 0 {
		if n := int(c.forkOff) * 8; n < len(c.fork) {
			c.fork = c.fork[:n]
		}
	}

	return c, nil
}

func decodeTimestamp(b []byte) time.Time {
	sec := binary.BigEndian.Uint32(b[0:4])
	nsec := binary.BigEndian.Uint32(b[4:8])
	return time.Unix(int64(int32(sec)), int64(nsec))
}

// extents decodes the extent list held in the data fork.
func (c *inodeCore) extents() ([]extent, error) {
	if c.format != fmtExtents {
		return nil, fmt.Errorf("data fork format %d has no extent list: %w", c.format, ErrUnsupportedFormat)
	}
	if int(c.nextents)*bmbtRecSize > len(c.fork) {
		return nil, fmt.Errorf("%d extents do not fit in a %d byte fork: %w", c.nextents, len(c.fork), ErrCorrupt)
	}

	exts := make([]extent, c.nextents)
	for i := range exts {
		exts[i] = decodeExtent(c.fork[i*bmbtRecSize : (i+1)*bmbtRecSize])
	}
	return exts, nil
}

// decodeExtent unpacks a 128-bit BMBT record:
// flag(1) | startoff(54) | startblock(52) | blockcount(21).
func decodeExtent(rec []byte) extent {
	l0 := binary.BigEndian.Uint64(rec[0:8])
	l1 := binary.BigEndian.Uint64(rec[8:16])
	return extent{
		unwritten:  l0>>63 != 0,
		fileOff:    (l0 & (1<<63 - 1)) >> 9,
		startBlock: (l0&0x1ff)<<43 | l1>>21,
		count:      l1 & (1<<21 - 1),
	}
}

// fileMode converts an on-disk mode into an fs.FileMode.
func fileMode(mode uint16) fs.FileMode {
	m := fs.FileMode(mode & 0777)
	switch mode & modeFmt {
	case modeDir:
		m |= fs.ModeDir
	case modeLnk:
		m |= fs.ModeSymlink
	case modeBlk:
		m |= fs.ModeDevice
	case modeChr:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case modeFIFO:
		m |= fs.ModeNamedPipe
	case modeSock:
		m |= fs.ModeSocket
	}
	if mode&0o4000 != 0 {
		m |= fs.ModeSetuid
	}
	if mode&0o2000 != 0 {
		m |= fs.ModeSetgid
	}
	if mode&0o1000 != 0 {
		m |= fs.ModeSticky
	}
	return m
}
