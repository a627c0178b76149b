package engine

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestBank serializes a header (magic + TOC) followed by data,
// rewriting each entry's Offset to its actual position within the
// resulting buffer (relative to entries[i], matching data's layout 1:1).
func buildTestBank(t *testing.T, entries []BankEntry, data []byte) []byte {
	t.Helper()
	var header bytes.Buffer
	header.WriteString(hsbMagic)
	require.NoError(t, binary.Write(&header, binary.LittleEndian, uint32(len(entries))))

	headerSize := uint64(header.Len()) + uint64(len(entries))*38
	for i := range entries {
		if entries[i].Offset == 0 {
			entries[i].Offset = headerSize
			headerSize += entries[i].FileSize
		}
		rec := struct {
			AssetHandle uint64
			Offset      uint64
			FileSize    uint64
			Duration    float64
			SampleRate  uint32
			Channels    uint16
		}{entries[i].AssetHandle, entries[i].Offset, entries[i].FileSize, entries[i].Duration, entries[i].SampleRate, entries[i].Channels}
		require.NoError(t, binary.Write(&header, binary.LittleEndian, rec))
	}
	header.Write(data)
	return header.Bytes()
}

func TestParseSoundBankValidTOC(t *testing.T) {
	data := []byte("RIFFxxxxWAVEfmt ")
	raw := buildTestBank(t, []BankEntry{
		{AssetHandle: 1, FileSize: uint64(len(data)), Duration: 2.5, SampleRate: 48000, Channels: 2},
	}, data)

	bank, err := parseSoundBank(raw)
	require.NoError(t, err)

	entry, ok := bank.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 2.5, entry.Duration)

	blob, ok := bank.Blob(1)
	require.True(t, ok)
	assert.Equal(t, data, blob)
}

func TestParseSoundBankRejectsBadMagic(t *testing.T) {
	raw := []byte("NOPE0000")
	_, err := parseSoundBank(raw)
	assert.Error(t, err)
}

func TestParseSoundBankRejectsOutOfRangeOffset(t *testing.T) {
	raw := buildTestBank(t, []BankEntry{
		{AssetHandle: 1, Offset: 1000, FileSize: 10},
	}, []byte("short"))
	_, err := parseSoundBank(raw)
	assert.Error(t, err)
}

func TestParseSoundBankRejectsTruncatedHeader(t *testing.T) {
	_, err := parseSoundBank([]byte("HS"))
	assert.Error(t, err)
}

func TestParseSoundBankLookupMissingHandle(t *testing.T) {
	raw := buildTestBank(t, nil, nil)
	bank, err := parseSoundBank(raw)
	require.NoError(t, err)
	_, ok := bank.Lookup(42)
	assert.False(t, ok)
}

func TestDecodeBlobRejectsUnknownContainer(t *testing.T) {
	_, err := decodeBlob([]byte("not-an-audio-container"))
	assert.Error(t, err)
}
