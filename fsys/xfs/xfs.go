// Package xfs implements read-only XFS filesystem support.
//
// Directories are read one entry at a time through a Dir handle whose only
// iteration state is an entry counter, decoding whichever of the short form,
// block, leaf or node encodings the directory inode uses.
package xfs

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/lvdlvd/xfscat/fsys"
)

const (
	superblockSize = 512
	xfsMagic       = 0x58465342 // "XFSB"

	versionNumMask  = 0x000f
	versionMoreBits = 0x8000

	// features2 bit carrying the directory file type byte on v4
	version2FType = 0x00000200
	// incompat bit carrying the directory file type byte on v5
	incompatFType = 0x00000001

	// Logical byte offset of the leaf block in a leaf-form directory.
	leafOffsetBytes = 32 << 30
)

// FS implements a read-only XFS filesystem
type FS struct {
	r      io.ReaderAt
	size   int64
	sb     superblock
	geo    geometry
	blocks blockSource
	pool   *bufferPool
	log    *log.Logger
	typ    string
}

// Options configures Mount.
type Options struct {
	// Logger receives driver diagnostics. Nil discards them.
	Logger *log.Logger
}

type superblock struct {
	blockSize        uint32
	dblocks          uint64
	uuid             [16]byte
	rootIno          uint64
	agBlocks         uint32
	agCount          uint32
	versionNum       uint16
	sectSize         uint16
	inodeSize        uint16
	inopBlock        uint16
	label            [12]byte
	blockLog         uint8
	inodeLog         uint8
	inopbLog         uint8
	agBlkLog         uint8
	icount           uint64
	ifree            uint64
	fdblocks         uint64
	dirBlkLog        uint8
	features2        uint32
	featuresIncompat uint32
}

// geometry holds the on-disk layout parameters that differ between v4 and
// v5 filesystems. It is fixed at mount time so the readers never branch on
// the version themselves.
type geometry struct {
	version       int
	ftype         bool
	inodeCoreSize int
	dataHdrSize   int
	leafHdrSize   int
	leafCountOff  int
	blockMagic    uint32
	dataMagic     uint32
	leaf1Magic    uint16
	dirBlkSize    int
	dirBlkFSBs    uint32
	leafOffsetFSB uint64
}

// Open opens an XFS filesystem from the given reader
func Open(r io.ReaderAt, size int64) (fsys.FS, error) {
	f, err := Mount(r, size, Options{})
	if f == nil || err != nil {
		return nil, err
	}
	return f, nil
}

// Mount is Open with options, returning the concrete filesystem so that
// callers can use the directory handle API. It returns nil, nil when the
// image does not carry an XFS superblock.
func Mount(r io.ReaderAt, size int64, opts Options) (*FS, error) {
	sbData := make([]byte, superblockSize)
	if _, err := r.ReadAt(sbData, 0); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}

	if binary.BigEndian.Uint32(sbData[0:4]) != xfsMagic {
		return nil, nil // Not an XFS filesystem
	}

	f := &FS{r: r, size: size, log: opts.Logger}
	if f.log == nil {
		f.log = log.New(io.Discard)
	}
	if err := f.parseSuperblock(sbData); err != nil {
		return nil, err
	}

	f.geo = newGeometry(&f.sb)
	f.pool = newBufferPool(f.geo.dirBlkSize)
	f.blocks = imageBlocks{f}

	if f.geo.version == 5 {
		f.typ = "XFS v5"
	} else {
		f.typ = "XFS v4"
	}
	f.log.Debug("mounted", "type", f.typ, "blocksize", f.sb.blockSize,
		"dirblksize", f.geo.dirBlkSize, "agcount", f.sb.agCount, "ftype", f.geo.ftype)

	return f, nil
}

func (f *FS) parseSuperblock(data []byte) error {
	be := binary.BigEndian
	f.sb.blockSize = be.Uint32(data[4:8])
	f.sb.dblocks = be.Uint64(data[8:16])
	copy(f.sb.uuid[:], data[32:48])
	f.sb.rootIno = be.Uint64(data[56:64])
	f.sb.agBlocks = be.Uint32(data[84:88])
	f.sb.agCount = be.Uint32(data[88:92])
	f.sb.versionNum = be.Uint16(data[100:102])
	f.sb.sectSize = be.Uint16(data[102:104])
	f.sb.inodeSize = be.Uint16(data[104:106])
	f.sb.inopBlock = be.Uint16(data[106:108])
	copy(f.sb.label[:], data[108:120])
	f.sb.blockLog = data[120]
	f.sb.inodeLog = data[122]
	f.sb.inopbLog = data[123]
	f.sb.agBlkLog = data[124]
	f.sb.icount = be.Uint64(data[128:136])
	f.sb.ifree = be.Uint64(data[136:144])
	f.sb.fdblocks = be.Uint64(data[144:152])
	f.sb.dirBlkLog = data[192]
	f.sb.features2 = be.Uint32(data[200:204])
	f.sb.featuresIncompat = be.Uint32(data[216:220])

	switch v := f.sb.versionNum & versionNumMask; {
	case v != 4 && v != 5:
		return fmt.Errorf("unsupported superblock version %d: %w", v, ErrCorrupt)
	case f.sb.blockLog < 9 || f.sb.blockLog > 16 || f.sb.blockSize != 1<<f.sb.blockLog:
		return fmt.Errorf("bad block size %d (log %d): %w", f.sb.blockSize, f.sb.blockLog, ErrCorrupt)
	case f.sb.inodeSize != 1<<f.sb.inodeLog || f.sb.inodeSize < 256:
		return fmt.Errorf("bad inode size %d: %w", f.sb.inodeSize, ErrCorrupt)
	case f.sb.inopBlock != 1<<f.sb.inopbLog || uint32(f.sb.inopBlock)*uint32(f.sb.inodeSize) != f.sb.blockSize:
		return fmt.Errorf("bad inodes per block %d: %w", f.sb.inopBlock, ErrCorrupt)
	case f.sb.agBlocks == 0 || f.sb.agCount == 0 || uint64(f.sb.agBlocks) > 1<<f.sb.agBlkLog:
		return fmt.Errorf("bad allocation group geometry: %w", ErrCorrupt)
	case int(f.sb.blockLog)+int(f.sb.dirBlkLog) > 16:
		return fmt.Errorf("bad directory block log %d: %w", f.sb.dirBlkLog, ErrCorrupt)
	}

	return nil
}

func newGeometry(sb *superblock) geometry {
	g := geometry{
		version:       int(sb.versionNum & versionNumMask),
		dirBlkSize:    int(sb.blockSize) << sb.dirBlkLog,
		dirBlkFSBs:    1 << sb.dirBlkLog,
		leafOffsetFSB: leafOffsetBytes >> sb.blockLog,
	}

	if g.version == 5 {
		g.ftype = sb.featuresIncompat&incompatFType != 0
		g.inodeCoreSize = 176
		g.dataHdrSize = 64
		g.leafHdrSize = 64
		g.leafCountOff = 56
		g.blockMagic = 0x58444233 // "XDB3"
		g.dataMagic = 0x58444433  // "XDD3"
		g.leaf1Magic = 0x3df1
	} else {
		g.ftype = sb.versionNum&versionMoreBits != 0 && sb.features2&version2FType != 0
		g.inodeCoreSize = 100
		g.dataHdrSize = 16
		g.leafHdrSize = 16
		g.leafCountOff = 12
		g.blockMagic = 0x58443242 // "XD2B"
		g.dataMagic = 0x58443244  // "XD2D"
		g.leaf1Magic = 0xd2f1
	}

	return g
}

func (f *FS) Type() string            { return f.typ }
func (f *FS) Close() error            { return nil }
func (f *FS) BaseReader() io.ReaderAt { return f.r }
func (f *FS) RootInode() uint64       { return f.sb.rootIno }
func (f *FS) Label() string           { return strings.TrimRight(string(f.sb.label[:]), "\x00 ") }

// Describe implements fsys.Describer
func (f *FS) Describe() []fsys.Property {
	u := f.sb.uuid
	return []fsys.Property{
		{Name: "Label", Value: f.Label()},
		{Name: "UUID", Value: fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])},
		{Name: "Block size", Value: fmt.Sprint(f.sb.blockSize)},
		{Name: "Directory block size", Value: fmt.Sprint(f.geo.dirBlkSize)},
		{Name: "Inode size", Value: fmt.Sprint(f.sb.inodeSize)},
		{Name: "Allocation groups", Value: fmt.Sprintf("%d x %d blocks", f.sb.agCount, f.sb.agBlocks)},
		{Name: "Data blocks", Value: fmt.Sprint(f.sb.dblocks)},
		{Name: "Free blocks", Value: fmt.Sprint(f.sb.fdblocks)},
		{Name: "Inodes", Value: fmt.Sprintf("%d allocated, %d free", f.sb.icount, f.sb.ifree)},
		{Name: "Root inode", Value: fmt.Sprint(f.sb.rootIno)},
		{Name: "Directory ftype", Value: fmt.Sprint(f.geo.ftype)},
	}
}

// fsbToOffset converts an AG-encoded filesystem block number into a byte
// offset within the image.
func (f *FS) fsbToOffset(fsb uint64) int64 {
	agno := fsb >> f.sb.agBlkLog
	agbno := fsb & (1<<f.sb.agBlkLog - 1)
	return int64(agno*uint64(f.sb.agBlocks)+agbno) << f.sb.blockLog
}
