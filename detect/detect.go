// Package detect identifies filesystem types from disk images.
package detect

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Type represents a filesystem type
type Type int

const (
	Unknown Type = iota
	XFSv4
	XFSv5
	MBR // Master Boot Record partition table
	GPT // GUID Partition Table
)

func (t Type) String() string {
	switch t {
	case XFSv4:
		return "XFS v4"
	case XFSv5:
		return "XFS v5"
	case MBR:
		return "MBR"
	case GPT:
		return "GPT"
	default:
		return "unknown"
	}
}

// IsXFS returns true if the type is any XFS version
func (t Type) IsXFS() bool {
	return t == XFSv4 || t == XFSv5
}

// IsPartitionTable returns true if the type is a partition table format
func (t Type) IsPartitionTable() bool {
	return t == MBR || t == GPT
}

// Detect identifies the filesystem type from a reader.
// It reads the necessary header bytes to identify the filesystem.
func Detect(r io.ReaderAt) (Type, error) {
	// The XFS superblock and the GPT header both sit in the first 1KB
	header := make([]byte, 1024)
	n, err := r.ReadAt(header, 0)
	if err != nil && err != io.EOF {
		return Unknown, fmt.Errorf("reading header: %w", err)
	}
	if n < 512 {
		return Unknown, fmt.Errorf("file too small: %d bytes", n)
	}

	// XFS superblock: "XFSB" at offset 0, version in the low nibble of
	// sb_versionnum at offset 100
	if bytes.Equal(header[0:4], []byte("XFSB")) {
		switch binary.BigEndian.Uint16(header[100:102]) & 0x000f {
		case 4:
			return XFSv4, nil
		case 5:
			return XFSv5, nil
		}
		return Unknown, nil
	}

	// GPT header "EFI PART" at LBA 1
	if n >= 520 && bytes.Equal(header[512:520], []byte("EFI PART")) {
		return GPT, nil
	}

	if header[510] == 0x55 && header[511] == 0xAA && hasMBRPartition(header) {
		return MBR, nil
	}

	return Unknown, nil
}

// hasMBRPartition checks for at least one non-empty, plausible entry in
// the MBR partition table at offset 446
func hasMBRPartition(header []byte) bool {
	for i := 0; i < 4; i++ {
		entry := header[446+i*16 : 446+(i+1)*16]

		if bootFlag := entry[0]; bootFlag != 0x00 && bootFlag != 0x80 {
			continue
		}
		if entry[4] == 0x00 {
			continue // Empty entry
		}

		lbaStart := binary.LittleEndian.Uint32(entry[8:12])
		lbaSize := binary.LittleEndian.Uint32(entry[12:16])
		if lbaStart > 0 && lbaSize > 0 {
			return true
		}
	}
	return false
}
