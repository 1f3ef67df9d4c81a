package detect

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	xfs := func(version uint16) []byte {
		img := make([]byte, 4096)
		copy(img, "XFSB")
		binary.BigEndian.PutUint16(img[100:], version)
		return img
	}

	gpt := make([]byte, 4096)
	copy(gpt[512:], "EFI PART")

	mbr := make([]byte, 4096)
	mbr[510], mbr[511] = 0x55, 0xAA
	mbr[446+4] = 0x83
	binary.LittleEndian.PutUint32(mbr[446+8:], 2048)
	binary.LittleEndian.PutUint32(mbr[446+12:], 65536)

	emptyMBR := make([]byte, 4096)
	emptyMBR[510], emptyMBR[511] = 0x55, 0xAA

	tests := []struct {
		name string
		img  []byte
		want Type
	}{
		{"xfs v4", xfs(4), XFSv4},
		{"xfs v4 morebits", xfs(0x8000 | 0x0080 | 4), XFSv4},
		{"xfs v5", xfs(5), XFSv5},
		{"xfs unknown version", xfs(3), Unknown},
		{"gpt", gpt, GPT},
		{"mbr", mbr, MBR},
		{"boot signature without partitions", emptyMBR, Unknown},
		{"zeros", make([]byte, 4096), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(bytes.NewReader(tt.img))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want == XFSv4 || tt.want == XFSv5, got.IsXFS())
		})
	}
}

func TestDetectTooSmall(t *testing.T) {
	_, err := Detect(bytes.NewReader(make([]byte, 100)))
	assert.Error(t, err)
}
