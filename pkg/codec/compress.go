package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// ------------------ Null ------------------

type nullCodec struct{}

var _ Codec = nullCodec{}

// NewNull returns the identity codec.
func NewNull() Codec { return nullCodec{} }

func (nullCodec) Name() string { return Null }

func (nullCodec) Compress(data []byte) ([]byte, error) { return data, nil }

func (nullCodec) Decompress(data []byte) ([]byte, error) { return data, nil }

// ------------------ Deflate ------------------

// DefaultDeflateLevel is the compression level of the built-in deflate codec.
const DefaultDeflateLevel = flate.DefaultCompression

// DeflateCodec writes raw deflate streams.
type DeflateCodec struct {
	Level int
	// MaxSize bounds the decompressed size; DefaultMaxSize when 0.
	MaxSize int64
}

var _ Codec = (*DeflateCodec)(nil)

// NewDeflate creates a deflate codec compressing at level, one of the
// flate package levels.
func NewDeflate(level int) *DeflateCodec {
	return &DeflateCodec{Level: level}
}

func (c *DeflateCodec) Name() string { return Deflate }

func (c *DeflateCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, c.Level)
	if err != nil {
		return nil, fmt.Errorf("create deflate writer failed: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("deflate write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *DeflateCodec) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	limit := maxSizeOrDefault(c.MaxSize)
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("deflate read failed: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("%w: deflate payload exceeds %d bytes", ErrTooLarge, limit)
	}
	return out, nil
}

// ------------------ Snappy ------------------

const snappyChecksumLen = 4

type snappyCodec struct{}

var _ Codec = snappyCodec{}

// NewSnappy returns the snappy codec.
func NewSnappy() Codec { return snappyCodec{} }

func (snappyCodec) Name() string { return Snappy }

func (snappyCodec) Compress(data []byte) ([]byte, error) {
	out := snappy.Encode(nil, data)
	var sum [snappyChecksumLen]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE(data))
	return append(out, sum[:]...), nil
}

func (snappyCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) < snappyChecksumLen {
		return nil, fmt.Errorf("snappy block of %d bytes has no checksum", len(data))
	}
	body, sum := data[:len(data)-snappyChecksumLen], data[len(data)-snappyChecksumLen:]
	n, err := snappy.DecodedLen(body)
	if err != nil {
		return nil, fmt.Errorf("snappy decode failed: %w", err)
	}
	if n > DefaultMaxSize {
		return nil, fmt.Errorf("%w: snappy payload declares %d bytes", ErrTooLarge, n)
	}
	out, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, fmt.Errorf("snappy decode failed: %w", err)
	}
	if crc32.ChecksumIEEE(out) != binary.BigEndian.Uint32(sum) {
		return nil, ErrChecksum
	}
	return out, nil
}

// ------------------ Zstandard ------------------

// ZstandardCodec compresses each block into one zstd frame. The encoder
// and decoder are created on first use and shared.
type ZstandardCodec struct {
	Level zstd.EncoderLevel
	// MaxSize bounds the decompressed size; DefaultMaxSize when 0.
	MaxSize int64

	once    sync.Once
	initErr error
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

var _ Codec = (*ZstandardCodec)(nil)

// NewZstandard creates a zstandard codec at the default level.
func NewZstandard() *ZstandardCodec {
	return &ZstandardCodec{Level: zstd.SpeedDefault}
}

func (c *ZstandardCodec) Name() string { return Zstandard }

func (c *ZstandardCodec) init() error {
	c.once.Do(func() {
		c.enc, c.initErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(c.Level))
		if c.initErr != nil {
			return
		}
		c.dec, c.initErr = zstd.NewReader(nil,
			zstd.WithDecoderMaxMemory(uint64(maxSizeOrDefault(c.MaxSize))))
	})
	return c.initErr
}

func (c *ZstandardCodec) Compress(data []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	return c.enc.EncodeAll(data, nil), nil
}

func (c *ZstandardCodec) Decompress(data []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	out, err := c.dec.DecodeAll(data, nil)
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
		return nil, fmt.Errorf("%w: zstd payload exceeds %d bytes", ErrTooLarge, maxSizeOrDefault(c.MaxSize))
	}
	if err != nil {
		return nil, fmt.Errorf("zstd decode failed: %w", err)
	}
	return out, nil
}
