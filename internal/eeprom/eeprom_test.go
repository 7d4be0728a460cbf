package eeprom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageScalarsAreLittleEndian(t *testing.T) {
	img := Blank()

	img.PutUint16(469, 3)
	assert.Equal(t, byte(0x03), img[469])
	assert.Equal(t, byte(0x00), img[470])
	assert.Equal(t, uint16(3), img.Uint16(469))

	img.PutUint32(376, 0x01020304)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, img[376:380])

	img.PutInt32(368, -2)
	assert.Equal(t, int32(-2), img.Int32(368))
	assert.Equal(t, uint32(0xFFFFFFFE), img.Uint32(368))
}

func TestImageStringTerminatesAndTruncates(t *testing.T) {
	img := Blank()

	img.PutString(0, 50, "hello")
	assert.Equal(t, []byte("hello"), img.String(0, 50))
	assert.Equal(t, byte(0), img[5])
	assert.Equal(t, byte(0), img[49])

	long := make([]byte, 80)
	for i := range long {
		long[i] = 'x'
	}
	img.PutString(50, 50, string(long))
	assert.Len(t, img.String(50, 50), 49)
	assert.Equal(t, byte(0), img[99])
}

func TestImageStringOfErasedBufferKeepsRawBytes(t *testing.T) {
	img := Blank()
	raw := img.String(100, 50)
	require.Len(t, raw, 49)
	assert.Equal(t, Erased, raw[0])
}

func TestImageOutOfRangePanics(t *testing.T) {
	img := Blank()
	assert.Panics(t, func() { img.Uint32(510) })
	assert.Panics(t, func() { img.PutBytes(-1, []byte{1}) })
}

func TestReadWriteImage(t *testing.T) {
	dev := NewMemory(Size)
	img := Blank()
	img.PutUint16(469, 3)

	require.NoError(t, WriteImage(dev, &img))
	assert.Equal(t, 1, dev.Commits)

	got, err := ReadImage(dev)
	require.NoError(t, err)
	assert.Equal(t, img, got)
}

func TestReadImageRejectsSmallDevice(t *testing.T) {
	dev := NewMemory(64)
	img, err := ReadImage(dev)
	require.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, Blank(), img)
}

func TestMemoryBounds(t *testing.T) {
	dev := NewMemory(16)
	assert.ErrorIs(t, dev.Write(15, []byte{1, 2}), ErrOutOfRange)
	assert.ErrorIs(t, dev.Read(-1, make([]byte, 1)), ErrOutOfRange)

	dev.Fill(0)
	buf := make([]byte, 4)
	require.NoError(t, dev.Read(0, buf))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}
