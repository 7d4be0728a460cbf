// Package eeprom encodes fixed-width fields at fixed offsets of the 512-byte
// configuration image and defines the byte-addressed device the image lives on.
//
// All scalars are little-endian with explicit widths so the layout does not
// depend on the host's integer sizes.
package eeprom

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const Size = 512

// Erased is the value of every byte of a blank device.
const Erased byte = 0xFF

var ErrOutOfRange = errors.New("eeprom: access out of range")

// Device is the backing store: byte-addressed reads and writes into a staging
// area, made durable by Commit.
type Device interface {
	Read(offset int, p []byte) error
	Write(offset int, p []byte) error
	Commit() error
	Size() int
}

// Image is an in-memory copy of the whole device.
type Image [Size]byte

// Blank returns an image in the erased state.
func Blank() Image {
	var img Image
	for i := range img {
		img[i] = Erased
	}
	return img
}

func (img *Image) check(offset, n int) {
	if offset < 0 || n < 0 || offset+n > Size {
		panic(fmt.Sprintf("eeprom: field [%d,%d) outside image", offset, offset+n))
	}
}

func (img *Image) Uint8(offset int) uint8 {
	img.check(offset, 1)
	return img[offset]
}

func (img *Image) PutUint8(offset int, v uint8) {
	img.check(offset, 1)
	img[offset] = v
}

func (img *Image) Uint16(offset int) uint16 {
	img.check(offset, 2)
	return binary.LittleEndian.Uint16(img[offset:])
}

func (img *Image) PutUint16(offset int, v uint16) {
	img.check(offset, 2)
	binary.LittleEndian.PutUint16(img[offset:], v)
}

func (img *Image) Uint32(offset int) uint32 {
	img.check(offset, 4)
	return binary.LittleEndian.Uint32(img[offset:])
}

func (img *Image) PutUint32(offset int, v uint32) {
	img.check(offset, 4)
	binary.LittleEndian.PutUint32(img[offset:], v)
}

func (img *Image) Int32(offset int) int32 {
	return int32(img.Uint32(offset))
}

func (img *Image) PutInt32(offset int, v int32) {
	img.PutUint32(offset, uint32(v))
}

// Bytes returns a copy of n bytes starting at offset.
func (img *Image) Bytes(offset, n int) []byte {
	img.check(offset, n)
	out := make([]byte, n)
	copy(out, img[offset:offset+n])
	return out
}

func (img *Image) PutBytes(offset int, b []byte) {
	img.check(offset, len(b))
	copy(img[offset:], b)
}

// String reads a fixed-size character buffer and returns its raw contents up
// to (not including) the first NUL. The field is always terminated at n-1.
func (img *Image) String(offset, n int) []byte {
	raw := img.Bytes(offset, n)
	raw[n-1] = 0
	for i, b := range raw {
		if b == 0 {
			return raw[:i]
		}
	}
	return raw
}

// PutString writes s into an n-byte buffer, truncating to n-1 bytes and
// zero-filling the remainder.
func (img *Image) PutString(offset, n int, s string) {
	img.check(offset, n)
	buf := make([]byte, n)
	copy(buf[:n-1], s)
	copy(img[offset:], buf)
}

// ReadImage loads the full image from dev.
func ReadImage(dev Device) (Image, error) {
	img := Blank()
	if dev.Size() < Size {
		return img, fmt.Errorf("device holds %d bytes, need %d: %w", dev.Size(), Size, ErrOutOfRange)
	}
	if err := dev.Read(0, img[:]); err != nil {
		return Blank(), fmt.Errorf("read image: %w", err)
	}
	return img, nil
}

// WriteImage stages the full image on dev and commits it.
func WriteImage(dev Device, img *Image) error {
	if err := dev.Write(0, img[:]); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := dev.Commit(); err != nil {
		return fmt.Errorf("commit image: %w", err)
	}
	return nil
}
