// Package resp implements the RESP2 wire protocol: the five frame kinds
// (Simple String, Error, Integer, Bulk String, Array), a decoder that
// signals ErrIncomplete when it needs more bytes, and an encoder that
// writes a reply into a single pre-sized buffer.
package resp

import (
	"errors"
	"strconv"
)

// Kind discriminates the five RESP2 frame types.
type Kind byte

const (
	SimpleString Kind = '+'
	Error        Kind = '-'
	Integer      Kind = ':'
	BulkString   Kind = '$'
	Array        Kind = '*'
)

// ErrIncomplete signals that Decode needs more bytes than buf currently
// holds; callers should read more from the socket and retry.
var ErrIncomplete = errors.New("resp: incomplete frame")

// ErrProtocol signals a frame that is structurally invalid RESP2.
var ErrProtocol = errors.New("resp: protocol error")

// Frame is a decoded or to-be-encoded RESP2 value.
type Frame struct {
	Kind Kind
	// Str holds the payload for SimpleString, Error and BulkString.
	Str []byte
	// Null is true for a BulkString frame representing the RESP2 null
	// bulk ($-1); Str is ignored in that case.
	Null bool
	// Int holds the payload for Integer.
	Int int64
	// Array holds the elements for Array; nil Array with Null true is
	// not produced by this package (the protocol never needs it here).
	Array []Frame
}

func Str(s string) Frame       { return Frame{Kind: SimpleString, Str: []byte(s)} }
func Err(s string) Frame       { return Frame{Kind: Error, Str: []byte(s)} }
func Int(n int64) Frame        { return Frame{Kind: Integer, Int: n} }
func Bulk(b []byte) Frame      { return Frame{Kind: BulkString, Str: b} }
func NilBulk() Frame           { return Frame{Kind: BulkString, Null: true} }
func Arr(elems ...Frame) Frame { return Frame{Kind: Array, Array: elems} }
func ArrOf(elems []Frame) Frame { return Frame{Kind: Array, Array: elems} }

// Decode attempts to decode one frame starting at buf[0]. It returns the
// frame, the number of bytes consumed, and an error. ErrIncomplete means
// buf holds a valid but truncated prefix; the caller should read more.
func Decode(buf []byte) (Frame, int, error) {
	return decodeAt(buf, 0)
}

func decodeAt(buf []byte, pos int) (Frame, int, error) {
	if pos >= len(buf) {
		return Frame{}, 0, ErrIncomplete
	}
	kind := Kind(buf[pos])
	switch kind {
	case SimpleString, Error:
		line, next, err := readLine(buf, pos+1)
		if err != nil {
			return Frame{}, 0, err
		}
		return Frame{Kind: kind, Str: line}, next, nil
	case Integer:
		line, next, err := readLine(buf, pos+1)
		if err != nil {
			return Frame{}, 0, err
		}
		n, perr := strconv.ParseInt(string(line), 10, 64)
		if perr != nil {
			return Frame{}, 0, ErrProtocol
		}
		return Frame{Kind: Integer, Int: n}, next, nil
	case BulkString:
		line, next, err := readLine(buf, pos+1)
		if err != nil {
			return Frame{}, 0, err
		}
		n, perr := strconv.ParseInt(string(line), 10, 64)
		if perr != nil {
			return Frame{}, 0, ErrProtocol
		}
		if n < 0 {
			return Frame{Kind: BulkString, Null: true}, next, nil
		}
		end := next + int(n)
		if end+2 > len(buf) {
			return Frame{}, 0, ErrIncomplete
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return Frame{}, 0, ErrProtocol
		}
		payload := make([]byte, n)
		copy(payload, buf[next:end])
		return Frame{Kind: BulkString, Str: payload}, end + 2, nil
	case Array:
		line, next, err := readLine(buf, pos+1)
		if err != nil {
			return Frame{}, 0, err
		}
		n, perr := strconv.ParseInt(string(line), 10, 64)
		if perr != nil {
			return Frame{}, 0, ErrProtocol
		}
		if n < 0 {
			return Frame{Kind: Array, Array: nil}, next, nil
		}
		elems := make([]Frame, 0, n)
		cursor := next
		for i := int64(0); i < n; i++ {
			elem, consumed, err := decodeAt(buf, cursor)
			if err != nil {
				return Frame{}, 0, err
			}
			elems = append(elems, elem)
			cursor = consumed
		}
		return Frame{Kind: Array, Array: elems}, cursor, nil
	default:
		return Frame{}, 0, ErrProtocol
	}
}

// readLine scans buf starting at pos for a \r\n terminator, returning the
// bytes before it and the position just past the terminator.
func readLine(buf []byte, pos int) ([]byte, int, error) {
	for i := pos; i < len(buf)-1; i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return buf[pos:i], i + 2, nil
		}
	}
	return nil, 0, ErrIncomplete
}

// EncodedLen returns the exact number of bytes Encode will write.
func (f Frame) EncodedLen() int {
	switch f.Kind {
	case SimpleString, Error:
		return 1 + len(f.Str) + 2
	case Integer:
		return 1 + len(strconv.FormatInt(f.Int, 10)) + 2
	case BulkString:
		if f.Null {
			return 1 + len("-1") + 2
		}
		return 1 + len(strconv.Itoa(len(f.Str))) + 2 + len(f.Str) + 2
	case Array:
		if f.Array == nil && f.Null {
			return 1 + len("-1") + 2
		}
		n := 1 + len(strconv.Itoa(len(f.Array))) + 2
		for _, e := range f.Array {
			n += e.EncodedLen()
		}
		return n
	default:
		return 0
	}
}

// Encode writes f into dst (which must be at least EncodedLen() bytes)
// and returns the number of bytes written.
func (f Frame) Encode(dst []byte) int {
	n := 0
	switch f.Kind {
	case SimpleString, Error:
		dst[n] = byte(f.Kind)
		n++
		n += copy(dst[n:], f.Str)
		n += copy(dst[n:], "\r\n")
	case Integer:
		dst[n] = byte(Integer)
		n++
		n += copy(dst[n:], strconv.FormatInt(f.Int, 10))
		n += copy(dst[n:], "\r\n")
	case BulkString:
		dst[n] = byte(BulkString)
		n++
		if f.Null {
			n += copy(dst[n:], "-1")
			n += copy(dst[n:], "\r\n")
			return n
		}
		n += copy(dst[n:], strconv.Itoa(len(f.Str)))
		n += copy(dst[n:], "\r\n")
		n += copy(dst[n:], f.Str)
		n += copy(dst[n:], "\r\n")
	case Array:
		dst[n] = byte(Array)
		n++
		if f.Array == nil && f.Null {
			n += copy(dst[n:], "-1")
			n += copy(dst[n:], "\r\n")
			return n
		}
		n += copy(dst[n:], strconv.Itoa(len(f.Array)))
		n += copy(dst[n:], "\r\n")
		for _, e := range f.Array {
			n += e.Encode(dst[n:])
		}
	}
	return n
}

// Bytes is a convenience for tests and small replies: allocates a
// correctly sized buffer and encodes into it.
func (f Frame) Bytes() []byte {
	buf := make([]byte, f.EncodedLen())
	f.Encode(buf)
	return buf
}
