// Package lzstring implements the URI-component flavour of the lz-string
// compression format.
//
// The encoder and decoder work on UTF-16 code units and use the same
// dictionary growth rules as the JavaScript library, so payloads written by
// a browser (lzstring.compressToEncodedURIComponent) decode here and the
// other way around. Output only uses the characters A-Z a-z 0-9 + - $, all
// of which are safe inside a URL fragment.
package lzstring

import (
	"errors"
	"strings"
	"unicode/utf16"
)

const uriSafeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+-$"

const (
	uriBitsPerChar = 6
	uriResetValue  = 1 << (uriBitsPerChar - 1)
)

var (
	// ErrEmpty is returned when decompressing an empty payload.
	ErrEmpty = errors.New("lzstring: empty payload")

	// ErrCorrupt is returned when the bit stream references dictionary
	// entries that cannot exist or ends before the end-of-stream marker.
	ErrCorrupt = errors.New("lzstring: corrupt payload")

	// ErrTooLarge is returned when the decompressed text would exceed the
	// limit passed to DecompressFromEncodedURIComponentLimit.
	ErrTooLarge = errors.New("lzstring: decompressed text exceeds limit")
)

// uriSafeValues maps an ASCII character to its 6-bit value. Characters
// outside the alphabet read as 0, like the JavaScript decoder.
var uriSafeValues [128]int

func init() {
	for i := 0; i < len(uriSafeAlphabet); i++ {
		uriSafeValues[uriSafeAlphabet[i]] = i
	}
}

// CompressToEncodedURIComponent compresses s into a URL-safe string.
// Invalid UTF-8 in s is replaced by U+FFFD before encoding.
func CompressToEncodedURIComponent(s string) string {
	w := &bitWriter{bitsPerChar: uriBitsPerChar}
	compress(utf16.Encode([]rune(s)), w)
	return string(w.out)
}

// DecompressFromEncodedURIComponent reverses CompressToEncodedURIComponent.
// Spaces are read as '+', since some mail clients and chat tools rewrite
// them in pasted links.
func DecompressFromEncodedURIComponent(payload string) (string, error) {
	return DecompressFromEncodedURIComponentLimit(payload, 0)
}

// DecompressFromEncodedURIComponentLimit is DecompressFromEncodedURIComponent
// with a cap of maxUnits UTF-16 code units on the output. Decompression
// stops with ErrTooLarge as soon as the cap is passed. A cap of zero or
// less means no limit.
func DecompressFromEncodedURIComponentLimit(payload string, maxUnits int) (string, error) {
	if payload == "" {
		return "", ErrEmpty
	}
	payload = strings.ReplaceAll(payload, " ", "+")

	units := utf16.Encode([]rune(payload))
	r := &bitReader{
		length: len(units),
		reset:  uriResetValue,
		next: func(i int) int {
			if i >= len(units) || units[i] >= 128 {
				return 0
			}
			return uriSafeValues[units[i]]
		},
	}
	r.val = r.next(0)
	r.pos = r.reset
	r.index = 1

	out, err := decompress(r, maxUnits)
	if err != nil {
		return "", err
	}
	return string(utf16.Decode(out)), nil
}

// URIComponent adapts the package functions to the playground compressor
// interface.
type URIComponent struct{}

func (URIComponent) CompressToURLSafe(s string) string {
	return CompressToEncodedURIComponent(s)
}

func (URIComponent) DecompressFromURLSafe(payload string) (string, error) {
	return DecompressFromEncodedURIComponent(payload)
}

func (URIComponent) DecompressFromURLSafeLimit(payload string, maxUnits int) (string, error) {
	return DecompressFromEncodedURIComponentLimit(payload, maxUnits)
}

type bitWriter struct {
	bitsPerChar int
	out         []byte
	val         int
	pos         int
}

// write appends the low n bits of value, least significant bit first.
func (w *bitWriter) write(value, n int) {
	for i := 0; i < n; i++ {
		w.val = w.val<<1 | value&1
		value >>= 1
		if w.pos == w.bitsPerChar-1 {
			w.pos = 0
			w.out = append(w.out, uriSafeAlphabet[w.val])
			w.val = 0
		} else {
			w.pos++
		}
	}
}

// flush pads the pending character with zero bits and emits it. A stream
// that ended on a character boundary still gets one all-zero character.
func (w *bitWriter) flush() {
	for {
		w.val <<= 1
		if w.pos == w.bitsPerChar-1 {
			w.out = append(w.out, uriSafeAlphabet[w.val])
			return
		}
		w.pos++
	}
}

func compress(units []uint16, w *bitWriter) {
	// Dictionary keys are the big-endian bytes of a run of code units, so
	// every phrase is a substring of raw.
	buf := make([]byte, 2*len(units))
	for i, u := range units {
		buf[2*i] = byte(u >> 8)
		buf[2*i+1] = byte(u)
	}
	raw := string(buf)
	phrase := func(start, end int) string { return raw[2*start : 2*end] }

	dictionary := make(map[string]int)
	pending := make(map[string]bool)
	enlargeIn := 2
	dictSize := 3
	numBits := 2

	grow := func() {
		enlargeIn--
		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}
	}

	emit := func(start, end int) {
		p := phrase(start, end)
		if pending[p] {
			first := int(units[start])
			if first < 256 {
				w.write(0, numBits)
				w.write(first, 8)
			} else {
				w.write(1, numBits)
				w.write(first, 16)
			}
			grow()
			delete(pending, p)
		} else {
			w.write(dictionary[p], numBits)
		}
		grow()
	}

	// The current phrase is always units[wStart:i].
	wStart := 0
	for i := range units {
		c := phrase(i, i+1)
		if _, ok := dictionary[c]; !ok {
			dictionary[c] = dictSize
			dictSize++
			pending[c] = true
		}

		wc := phrase(wStart, i+1)
		if _, ok := dictionary[wc]; ok {
			continue
		}

		emit(wStart, i)
		dictionary[wc] = dictSize
		dictSize++
		wStart = i
	}

	if wStart < len(units) {
		emit(wStart, len(units))
	}

	w.write(2, numBits)
	w.flush()
}

type bitReader struct {
	length int
	reset  int
	next   func(int) int
	val    int
	pos    int
	index  int
}

// read consumes n bits, least significant bit first.
func (r *bitReader) read(n int) int {
	bits := 0
	for power := 0; power < n; power++ {
		set := r.val&r.pos > 0
		r.pos >>= 1
		if r.pos == 0 {
			r.pos = r.reset
			r.val = r.next(r.index)
			r.index++
		}
		if set {
			bits |= 1 << power
		}
	}
	return bits
}

// decompress reads the bit stream. A positive limit caps the output length
// in code units; dictionary entries never outgrow the output, so it also
// bounds memory.
func decompress(r *bitReader, limit int) ([]uint16, error) {
	// Codes 0, 1 and 2 are reserved for "8-bit literal", "16-bit literal"
	// and "end of stream"; their slots hold nothing.
	dictionary := make([][]uint16, 3, 64)
	enlargeIn := 4
	numBits := 3

	var c []uint16
	switch r.read(2) {
	case 0:
		c = []uint16{uint16(r.read(8))}
	case 1:
		c = []uint16{uint16(r.read(16))}
	case 2:
		return nil, nil
	default:
		return nil, ErrCorrupt
	}
	dictionary = append(dictionary, c)
	w := c
	result := append([]uint16(nil), c...)

	for {
		if r.index > r.length {
			return nil, ErrCorrupt
		}

		code := r.read(numBits)
		switch code {
		case 0:
			dictionary = append(dictionary, []uint16{uint16(r.read(8))})
			code = len(dictionary) - 1
			enlargeIn--
		case 1:
			dictionary = append(dictionary, []uint16{uint16(r.read(16))})
			code = len(dictionary) - 1
			enlargeIn--
		case 2:
			return result, nil
		}

		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}

		var entry []uint16
		switch {
		case code < len(dictionary):
			entry = dictionary[code]
		case code == len(dictionary):
			entry = make([]uint16, len(w)+1)
			copy(entry, w)
			entry[len(w)] = w[0]
		default:
			return nil, ErrCorrupt
		}
		if limit > 0 && len(result)+len(entry) > limit {
			return nil, ErrTooLarge
		}
		result = append(result, entry...)

		phrase := make([]uint16, len(w)+1)
		copy(phrase, w)
		phrase[len(w)] = entry[0]
		dictionary = append(dictionary, phrase)
		enlargeIn--

		w = entry
		if enlargeIn == 0 {
			enlargeIn = 1 << numBits
			numBits++
		}
	}
}
