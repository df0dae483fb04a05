// Package binreader provides bounds-checked typed reads over a byte
// slice, in both big-endian (CMD, POL) and little-endian (PRF, INS)
// orderings.
package binreader

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is wrapped into every bounds-check failure so callers
// can test for it with errors.Is regardless of which read tripped it.
var ErrOutOfRange = errors.New("binreader: out of range")

// Reader is a cursor over an immutable byte slice. The zero value is
// not usable; construct with New.
type Reader struct {
	data []byte
	pos  int
}

// New wraps data for sequential or random-access typed reads.
func New(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the total length of the underlying data.
func (r *Reader) Len() int { return len(r.data) }

// Pos returns the current cursor position.
func (r *Reader) Pos() int { return r.pos }

// Seek moves the cursor to an absolute offset. It does not validate
// the offset; an out-of-range seek surfaces on the next read.
func (r *Reader) Seek(offset int) { r.pos = offset }

// Remaining reports how many bytes are left from the current cursor.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) require(at, n int) error {
	if at < 0 || n < 0 || at+n > len(r.data) {
		return fmt.Errorf("%w: need %d bytes at %d, have %d total", ErrOutOfRange, n, at, len(r.data))
	}
	return nil
}

// U8 reads one byte at the cursor and advances it.
func (r *Reader) U8() (uint8, error) {
	if err := r.require(r.pos, 1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

// I8 reads one signed byte at the cursor and advances it.
func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

// U16BE reads a big-endian u16 at the cursor and advances it.
func (r *Reader) U16BE() (uint16, error) {
	if err := r.require(r.pos, 2); err != nil {
		return 0, err
	}
	v := uint16(r.data[r.pos])<<8 | uint16(r.data[r.pos+1])
	r.pos += 2
	return v, nil
}

// I16BE reads a big-endian i16 at the cursor and advances it.
func (r *Reader) I16BE() (int16, error) {
	v, err := r.U16BE()
	return int16(v), err
}

// U16LE reads a little-endian u16 at the cursor and advances it.
func (r *Reader) U16LE() (uint16, error) {
	if err := r.require(r.pos, 2); err != nil {
		return 0, err
	}
	v := uint16(r.data[r.pos]) | uint16(r.data[r.pos+1])<<8
	r.pos += 2
	return v, nil
}

// I16LE reads a little-endian i16 at the cursor and advances it.
func (r *Reader) I16LE() (int16, error) {
	v, err := r.U16LE()
	return int16(v), err
}

// U32BE reads a big-endian u32 at the cursor and advances it.
func (r *Reader) U32BE() (uint32, error) {
	if err := r.require(r.pos, 4); err != nil {
		return 0, err
	}
	v := uint32(r.data[r.pos])<<24 | uint32(r.data[r.pos+1])<<16 |
		uint32(r.data[r.pos+2])<<8 | uint32(r.data[r.pos+3])
	r.pos += 4
	return v, nil
}

// U32LE reads a little-endian u32 at the cursor and advances it.
func (r *Reader) U32LE() (uint32, error) {
	if err := r.require(r.pos, 4); err != nil {
		return 0, err
	}
	v := uint32(r.data[r.pos]) | uint32(r.data[r.pos+1])<<8 |
		uint32(r.data[r.pos+2])<<16 | uint32(r.data[r.pos+3])<<24
	r.pos += 4
	return v, nil
}

// Bytes reads n raw bytes at the cursor and advances it.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.require(r.pos, n); err != nil {
		return nil, err
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// Skip advances the cursor by n bytes without reading, still bounds-checked.
func (r *Reader) Skip(n int) error {
	if err := r.require(r.pos, n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// U16BEAt reads a big-endian u16 at an absolute offset without moving
// the cursor. Used throughout the offset-table-driven asset formats.
func U16BEAt(data []byte, at int) (uint16, error) {
	if at < 0 || at+2 > len(data) {
		return 0, fmt.Errorf("%w: need 2 bytes at %d, have %d total", ErrOutOfRange, at, len(data))
	}
	return uint16(data[at])<<8 | uint16(data[at+1]), nil
}

// U8At reads one byte at an absolute offset without moving the cursor.
func U8At(data []byte, at int) (uint8, error) {
	if at < 0 || at+1 > len(data) {
		return 0, fmt.Errorf("%w: need 1 byte at %d, have %d total", ErrOutOfRange, at, len(data))
	}
	return data[at], nil
}

// I16BEAt reads a big-endian i16 at an absolute offset without moving
// the cursor.
func I16BEAt(data []byte, at int) (int16, error) {
	v, err := U16BEAt(data, at)
	return int16(v), err
}

// U16LEAt reads a little-endian u16 at an absolute offset without
// moving the cursor.
func U16LEAt(data []byte, at int) (uint16, error) {
	if at < 0 || at+2 > len(data) {
		return 0, fmt.Errorf("%w: need 2 bytes at %d, have %d total", ErrOutOfRange, at, len(data))
	}
	return uint16(data[at]) | uint16(data[at+1])<<8, nil
}

// I16LEAt reads a little-endian i16 at an absolute offset without
// moving the cursor.
func I16LEAt(data []byte, at int) (int16, error) {
	v, err := U16LEAt(data, at)
	return int16(v), err
}

// U32LEAt reads a little-endian u32 at an absolute offset without
// moving the cursor.
func U32LEAt(data []byte, at int) (uint32, error) {
	if at < 0 || at+4 > len(data) {
		return 0, fmt.Errorf("%w: need 4 bytes at %d, have %d total", ErrOutOfRange, at, len(data))
	}
	return uint32(data[at]) | uint32(data[at+1])<<8 | uint32(data[at+2])<<16 | uint32(data[at+3])<<24, nil
}
