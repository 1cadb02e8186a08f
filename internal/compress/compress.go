// Package compress encodes diagnostic blobs with LZ4 or Zstandard.
//
// An encoded blob is a one-byte algorithm tag followed by an 8-byte header
// [UncompressedSize uint32][CompressedSize uint32] and the payload. A
// compressed size of 0 marks a payload stored as is, which happens when
// compression does not pay off.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm selects the compression algorithm.
type Algorithm uint8

const (
	// None stores payloads uncompressed.
	None Algorithm = 0
	// LZ4 is fast block compression.
	LZ4 Algorithm = 1
	// Zstd has the better ratio.
	Zstd Algorithm = 2
)

var (
	// ErrCorrupt is returned for blobs that cannot be decoded.
	ErrCorrupt = errors.New("corrupt compressed blob")
	// ErrAlgorithm is returned for unknown algorithm names or tags.
	ErrAlgorithm = errors.New("unknown compression algorithm")
)

const headerSize = 9

// String returns the algorithm name.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	}
	return fmt.Sprintf("algorithm(%d)", uint8(a))
}

// Ext returns the file name extension for blobs of this algorithm.
func (a Algorithm) Ext() string {
	switch a {
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	}
	return ""
}

// ParseAlgorithm parses "none", "lz4" or "zstd". The empty string selects
// None.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	}
	return None, fmt.Errorf("%w: %q", ErrAlgorithm, s)
}

var (
	encoders sync.Pool
	decoders sync.Pool
)

func getEncoder() *zstd.Encoder {
	if v := encoders.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getDecoder() *zstd.Decoder {
	if v := decoders.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode compresses data with a.
func Encode(data []byte, a Algorithm) ([]byte, error) {
	var payload []byte
	switch a {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		payload = buf[:n]
	case Zstd:
		enc := getEncoder()
		payload = enc.EncodeAll(data, nil)
		encoders.Put(enc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrAlgorithm, a)
	}

	// Incompressible data (lz4 reports n == 0) is stored as is.
	stored := len(payload) > 0 && len(payload) < len(data)
	out := make([]byte, headerSize, headerSize+len(data))
	out[0] = byte(a)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	if stored {
		binary.LittleEndian.PutUint32(out[5:], uint32(len(payload)))
		return append(out, payload...), nil
	}
	return append(out, data...), nil
}

// Decode restores a blob written by Encode.
func Decode(blob []byte) ([]byte, error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(blob))
	}
	a := Algorithm(blob[0])
	size := binary.LittleEndian.Uint32(blob[1:])
	csize := binary.LittleEndian.Uint32(blob[5:])
	body := blob[headerSize:]

	if csize == 0 {
		if uint32(len(body)) != size {
			return nil, fmt.Errorf("%w: payload has %d bytes, header says %d", ErrCorrupt, len(body), size)
		}
		return body, nil
	}
	if uint32(len(body)) != csize {
		return nil, fmt.Errorf("%w: payload has %d bytes, header says %d", ErrCorrupt, len(body), csize)
	}

	switch a {
	case LZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case Zstd:
		dec := getDecoder()
		defer decoders.Put(dec)
		out, err := dec.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(len(out)) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrAlgorithm, a)
}
