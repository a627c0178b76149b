package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamReader struct {
	*bytes.Reader
	closed bool
}

func (r *fakeStreamReader) Seek(offset int64, origin SeekOrigin) (int64, error) {
	var whence int
	switch origin {
	case SeekStart:
		whence = 0
	case SeekCurrent:
		whence = 1
	case SeekEnd:
		whence = 2
	}
	return r.Reader.Seek(offset, whence)
}

func (r *fakeStreamReader) Tell() (int64, error)         { return r.Reader.Seek(0, 1) }
func (r *fakeStreamReader) StreamLength() (int64, error) { return int64(r.Reader.Len()), nil }
func (r *fakeStreamReader) Close() error                 { r.closed = true; return nil }

type fakeAssetBackend struct {
	readers map[uint64]*fakeStreamReader
}

func (b *fakeAssetBackend) CreateReader(assetHandle uint64) (StreamReader, error) {
	r, ok := b.readers[assetHandle]
	if !ok {
		return nil, nil
	}
	return r, nil
}

func (b *fakeAssetBackend) FileSize(assetHandle uint64) (uint64, error) {
	r, ok := b.readers[assetHandle]
	if !ok {
		return 0, nil
	}
	return uint64(r.Reader.Len()), nil
}

func newEditorResourceManager(handles map[uint64][]byte) (*ResourceManager, *fakeAssetBackend) {
	readers := make(map[uint64]*fakeStreamReader, len(handles))
	for h, data := range handles {
		readers[h] = &fakeStreamReader{Reader: bytes.NewReader(data)}
	}
	backend := &fakeAssetBackend{readers: readers}
	rm := NewResourceManager("", true, DefaultStreamingThresholdSeconds, backend)
	return rm, backend
}

func TestSourceManagerInitializeSourceBuildsChain(t *testing.T) {
	rm, _ := newEditorResourceManager(map[uint64][]byte{1: make([]byte, 64)})
	sm := NewSourceManager(rm, 48000)

	ok, err := sm.InitializeSource(SourceId(0), SoundConfig{AssetHandle: 1, MasterReverbSend: 0.3})
	require.NoError(t, err)
	assert.True(t, ok)

	chain := sm.Chain(SourceId(0))
	require.NotNil(t, chain)
	assert.NotNil(t, chain.filter)
	assert.NotNil(t, chain.splitter)
	assert.Nil(t, chain.spatializer)
}

func TestSourceManagerInitializeSourceWithSpatializationEnabled(t *testing.T) {
	rm, _ := newEditorResourceManager(map[uint64][]byte{1: make([]byte, 64)})
	sm := NewSourceManager(rm, 48000)

	ok, err := sm.InitializeSource(SourceId(0), SoundConfig{
		AssetHandle:           1,
		SpatializationEnabled: true,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	chain := sm.Chain(SourceId(0))
	require.NotNil(t, chain)
	assert.NotNil(t, chain.spatializer)
}

func TestSourceManagerInitializeSourceMissingHandleReturnsFalse(t *testing.T) {
	rm, _ := newEditorResourceManager(nil)
	sm := NewSourceManager(rm, 48000)

	ok, err := sm.InitializeSource(SourceId(0), SoundConfig{AssetHandle: 999})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, sm.Chain(SourceId(0)))
}

func TestSourceManagerReleaseSourceClosesReaderAndClearsChain(t *testing.T) {
	rm, backend := newEditorResourceManager(map[uint64][]byte{1: make([]byte, 64)})
	sm := NewSourceManager(rm, 48000)

	ok, err := sm.InitializeSource(SourceId(0), SoundConfig{AssetHandle: 1})
	require.NoError(t, err)
	require.True(t, ok)

	sm.ReleaseSource(SourceId(0))
	assert.Nil(t, sm.Chain(SourceId(0)))
	assert.True(t, backend.readers[1].closed)
}
