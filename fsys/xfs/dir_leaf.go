package xfs

import (
	"encoding/binary"
	"fmt"
)

const (
	leafMagicOff = 8
	nullDataPtr  = 0
	dataPtrShift = 3
)

// leafFormReader decodes a directory with several data blocks indexed by a
// single leaf block. The leaf is read fresh on every call; the most recent
// data block stays cached on the handle.
type leafFormReader struct{}

func (leafFormReader) next(d *Dir, out *Dirent) error {
	f := d.fs
	be := binary.BigEndian

	leaf, err := d.readDirBlock(f.geo.leafOffsetFSB)
	if err != nil {
		return err
	}
	defer leaf.Release()

	data := leaf.data
	if magic := be.Uint16(data[leafMagicOff:]); magic != f.geo.leaf1Magic {
		f.log.Error("single leaf block header magic does not match", "ino", d.ino, "magic", fmt.Sprintf("%#04x", magic))
		return fmt.Errorf("leaf directory %d: bad leaf magic %#04x: %w", d.ino, magic, ErrCorrupt)
	}

	count := uint32(be.Uint16(data[f.geo.leafCountOff:]))
	if count == 0 || f.geo.leafHdrSize+int(count)*leafEntrySize > len(data) {
		return fmt.Errorf("leaf directory %d: leaf count %d: %w", d.ino, count, ErrCorrupt)
	}
	ents := data[f.geo.leafHdrSize : f.geo.leafHdrSize+int(count)*leafEntrySize]
	address := func(i uint32) uint32 {
		return be.Uint32(ents[i*leafEntrySize+4:])
	}

	if d.offset+1 > count {
		return ErrEndOfDirectory
	}

	i := d.offset
	d.offset++
	for address(i) == nullDataPtr {
		if d.offset >= count {
			return ErrEndOfDirectory
		}
		i++
		d.offset++
	}

	db, off := f.splitDataPtr(address(i))
	block, err := d.dataBlock(db)
	if err != nil {
		return err
	}

	cur := recordCursor{buf: block, off: off}
	if off < f.geo.dataHdrSize {
		return fmt.Errorf("leaf directory %d: data pointer into block header: %w", d.ino, ErrCorrupt)
	}
	ino, name, err := readDataEntry(&cur)
	if err != nil {
		return err
	}

	return f.fillDirent(out, d.offset, ino, name)
}

// splitDataPtr decodes a leaf address into a directory block number and a
// byte offset within that block. Addresses count 8 byte units.
func (f *FS) splitDataPtr(addr uint32) (db uint32, off int) {
	b := uint64(addr) << dataPtrShift
	return uint32(b >> (uint(f.sb.blockLog) + uint(f.sb.dirBlkLog))), int(b & uint64(f.geo.dirBlkSize-1))
}

// dataBlock returns data block db, fetching it only when the cache holds a
// different block. The previous block is released before the fetch.
func (d *Dir) dataBlock(db uint32) ([]byte, error) {
	if d.cache.buf != nil && d.cache.db == db {
		return d.cache.buf.data, nil
	}
	d.cache.drop()

	f := d.fs
	buf, err := d.readDirBlock(uint64(db) << f.sb.dirBlkLog)
	if err != nil {
		return nil, err
	}
	if magic := binary.BigEndian.Uint32(buf.data[0:4]); magic != f.geo.dataMagic {
		buf.Release()
		f.log.Error("leaf directory data magic does not match", "ino", d.ino, "db", db, "magic", fmt.Sprintf("%#08x", magic))
		return nil, fmt.Errorf("leaf directory %d: data block %d bad magic %#08x: %w", d.ino, db, magic, ErrCorrupt)
	}

	d.cache = dataBlockCache{db: db, buf: buf}
	return buf.data, nil
}
