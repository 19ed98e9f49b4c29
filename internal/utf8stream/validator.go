// Package utf8stream
// Author: momentics <momentics@gmail.com>
//
// Incremental UTF-8 validation for text messages that arrive in pieces.
// A partial multi-byte sequence is carried across Feed calls; invalid input
// is reported at the first byte that cannot extend a valid prefix.

package utf8stream

import (
	"unicode/utf8"

	"github.com/momentics/hioload-wsmsg/api"
)

// Validator is not safe for concurrent use.
type Validator struct {
	pending [utf8.UTFMax]byte
	n       int   // bytes held in pending
	need    int   // full length of the pending sequence
	offset  int64 // bytes accepted so far, for error context
	err     error
}

// Feed validates p and returns the bytes that form complete code points,
// including a sequence completed from a previous call. The returned slice
// aliases p when no sequence was carried over.
func (v *Validator) Feed(p []byte) ([]byte, error) {
	if v.err != nil {
		return nil, v.err
	}

	var head []byte
	i := 0
	if v.n > 0 {
		for v.n < v.need && i < len(p) {
			if !v.validAt(v.n, p[i]) {
				return nil, v.fail(p[i])
			}
			v.pending[v.n] = p[i]
			v.n++
			i++
		}
		if v.n < v.need {
			return nil, nil
		}
		head = append(head, v.pending[:v.need]...)
		v.offset += int64(v.need)
		v.n, v.need = 0, 0
	}

	start := i
	for i < len(p) {
		b := p[i]
		if b < utf8.RuneSelf {
			i++
			continue
		}
		size, lo, hi := classify(b)
		if size == 0 {
			v.offset += int64(i - start)
			return nil, v.fail(b)
		}
		for j := 1; j < size; j++ {
			if i+j >= len(p) {
				// Truncated at the end of this chunk: keep the prefix.
				v.n = copy(v.pending[:], p[i:])
				v.need = size
				return v.emit(head, p[start:i]), nil
			}
			c := p[i+j]
			if (j == 1 && (c < lo || c > hi)) || (j > 1 && (c < 0x80 || c > 0xBF)) {
				v.offset += int64(i + j - start)
				return nil, v.fail(c)
			}
		}
		i += size
	}
	return v.emit(head, p[start:]), nil
}

// Finish reports a sequence left unterminated at the end of the message.
func (v *Validator) Finish() error {
	if v.err != nil {
		return v.err
	}
	if v.n > 0 {
		v.err = api.Errorf(api.ErrCodeInvalidEncoding,
			"truncated UTF-8 sequence at end of message (%d of %d bytes)", v.n, v.need).
			WithContext("offset", v.offset)
		return v.err
	}
	return nil
}

// Pending returns the number of bytes of an incomplete sequence carried
// over to the next Feed.
func (v *Validator) Pending() int { return v.n }

// Reset clears all state, including a previous failure.
func (v *Validator) Reset() { *v = Validator{} }

func (v *Validator) emit(head, body []byte) []byte {
	v.offset += int64(len(body))
	if head == nil {
		return body
	}
	return append(head, body...)
}

func (v *Validator) validAt(pos int, c byte) bool {
	if pos == 1 {
		_, lo, hi := classify(v.pending[0])
		return c >= lo && c <= hi
	}
	return c >= 0x80 && c <= 0xBF
}

func (v *Validator) fail(b byte) error {
	v.err = api.Errorf(api.ErrCodeInvalidEncoding, "invalid UTF-8 byte 0x%02x", b).
		WithContext("offset", v.offset)
	return v.err
}

// classify returns the sequence length announced by a lead byte and the
// legal range of the second byte. Size zero marks an illegal lead byte.
func classify(b byte) (size int, lo, hi byte) {
	switch {
	case b >= 0xC2 && b <= 0xDF:
		return 2, 0x80, 0xBF
	case b == 0xE0:
		return 3, 0xA0, 0xBF
	case b >= 0xE1 && b <= 0xEC, b == 0xEE, b == 0xEF:
		return 3, 0x80, 0xBF
	case b == 0xED:
		return 3, 0x80, 0x9F
	case b == 0xF0:
		return 4, 0x90, 0xBF
	case b >= 0xF1 && b <= 0xF3:
		return 4, 0x80, 0xBF
	case b == 0xF4:
		return 4, 0x80, 0x8F
	default:
		return 0, 0, 0
	}
}
