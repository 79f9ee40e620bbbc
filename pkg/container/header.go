package container

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/ssargent/avrokit/pkg/codec"
	"github.com/ssargent/avrokit/pkg/tap"
	"github.com/ssargent/avrokit/pkg/types"
)

// Header is the metadata and sync marker at the start of a container.
type Header struct {
	Meta map[string][]byte
	Sync [SyncSize]byte
}

// Schema parses the writer schema stored in the header.
func (h *Header) Schema(opts *types.Options) (*types.Type, error) {
	raw, ok := h.Meta[MetaSchema]
	if !ok {
		return nil, ErrMissingSchema
	}
	return types.Parse(string(raw), opts)
}

// CodecName returns the block codec, null when the header names none.
func (h *Header) CodecName() string {
	if name, ok := h.Meta[MetaCodec]; ok && len(name) > 0 {
		return string(name)
	}
	return codec.Null
}

// WriteHeader writes magic, metadata and sync marker. Metadata entries are
// written in key order so equal headers encode identically.
func WriteHeader(tp *tap.Tap, h *Header) {
	tp.WriteFixed([]byte(Magic))
	if len(h.Meta) > 0 {
		keys := make([]string, 0, len(h.Meta))
		for k := range h.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		tp.WriteLong(int64(len(keys)))
		for _, k := range keys {
			tp.WriteString(k)
			tp.WriteBytes(h.Meta[k])
		}
	}
	tp.WriteLong(0)
	tp.WriteFixed(h.Sync[:])
}

// ReadHeader parses a header at the tap's position. When the header is not
// fully buffered it rewinds the tap and returns errNeedMore; the caller
// appends input and parses again from the start. Fewer than four bytes are
// never judged as bad magic.
func ReadHeader(tp *tap.Tap) (*Header, error) {
	start := tp.Pos()
	if tp.Remaining() < len(Magic) {
		return nil, errNeedMore
	}
	if !bytes.Equal(tp.ReadFixed(len(Magic)), []byte(Magic)) {
		tp.Reset(start)
		return nil, ErrBadMagic
	}

	h := &Header{Meta: make(map[string][]byte)}
	for {
		n := tp.ReadLong()
		if !tp.Valid() || n == 0 {
			break
		}
		if n < 0 {
			if n == math.MinInt64 {
				tp.MarkCorrupt()
				break
			}
			n = -n
			tp.SkipLong()
		}
		for i := int64(0); i < n && tp.Valid(); i++ {
			k := tp.ReadString()
			v := tp.ReadBytes()
			if v == nil {
				v = []byte{}
			}
			h.Meta[k] = v
		}
		if !tp.Valid() {
			break
		}
	}
	copy(h.Sync[:], tp.ReadFixed(SyncSize))

	switch {
	case tp.Corrupt():
		tp.Reset(start)
		return nil, fmt.Errorf("%w: malformed header metadata", ErrCorruptBlock)
	case !tp.Valid():
		tp.Reset(start)
		return nil, errNeedMore
	}
	return h, nil
}

// ExtractHeader reads just the header from r. It starts with a buffer of
// initialSize bytes and doubles it until the header parses, reparsing from
// the first byte each time.
func ExtractHeader(r io.Reader, initialSize int) (*Header, error) {
	if initialSize <= 0 {
		initialSize = 4096
	}
	buf := make([]byte, 0, initialSize)
	for {
		n, err := io.ReadFull(r, buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]

		h, perr := ReadHeader(tap.New(buf))
		if perr == nil {
			return h, nil
		}
		if perr != errNeedMore {
			return nil, perr
		}
		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return nil, endOfHeaderError(buf)
		default:
			return nil, err
		}

		grown := make([]byte, len(buf), 2*cap(buf))
		copy(grown, buf)
		buf = grown
	}
}

// endOfHeaderError classifies input that ended inside the header.
func endOfHeaderError(buf []byte) error {
	if len(buf) < len(Magic) && !bytes.HasPrefix([]byte(Magic), buf) {
		return ErrBadMagic
	}
	return fmt.Errorf("%w: input ended inside the header", ErrTruncatedFile)
}

// IsContainer reports whether b starts with a complete container header
// whose schema is valid JSON.
func IsContainer(b []byte) bool {
	h, err := ReadHeader(tap.New(b))
	if err != nil {
		return false
	}
	raw, ok := h.Meta[MetaSchema]
	return ok && json.Valid(raw)
}
