package container

import (
	"fmt"
	"io"
	"strings"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/avrokit/pkg/codec"
	"github.com/ssargent/avrokit/pkg/tap"
	"github.com/ssargent/avrokit/pkg/types"
)

// BlockEncoder writes records to w as an object container. Records
// accumulate in memory until the block reaches BlockSize bytes or
// BlockCount records, then the block is compressed and written.
//
// A BlockEncoder is not safe for concurrent use.
type BlockEncoder struct {
	w        io.Writer
	typ      *types.Type
	cfg      EncoderConfig
	codec    codec.Codec
	observer Observer
	sync     [SyncSize]byte

	state       EncoderState
	pending     *tap.Tap
	count       int
	wroteHeader bool
	err         error
}

// NewBlockEncoder creates an encoder for records of type typ. The sync
// marker is fixed here; nothing is written until the first block is
// flushed or the encoder is closed.
func NewBlockEncoder(w io.Writer, typ *types.Type, cfg EncoderConfig) (*BlockEncoder, error) {
	if typ == nil {
		return nil, fmt.Errorf("container: encoder needs a schema")
	}
	for k := range cfg.Metadata {
		if strings.HasPrefix(k, "avro.") {
			return nil, fmt.Errorf("container: metadata key %q is reserved", k)
		}
	}
	c, err := registryOrDefault(cfg.Codecs).Get(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}

	e := &BlockEncoder{
		w:        w,
		typ:      typ,
		cfg:      cfg,
		codec:    c,
		observer: observerOrNop(cfg.Observer),
		state:    Open,
		pending:  tap.NewSize(cfg.BlockSize + cfg.BlockSize/4),
	}
	if cfg.SyncMarker != nil {
		e.sync = *cfg.SyncMarker
	} else {
		copy(e.sync[:], ksuid.New().Payload())
	}
	return e, nil
}

// Sync returns the sync marker written after every block.
func (e *BlockEncoder) Sync() [SyncSize]byte { return e.sync }

// State returns the encoder's current state.
func (e *BlockEncoder) State() EncoderState { return e.state }

// Header returns the header this encoder writes.
func (e *BlockEncoder) Header() *Header {
	meta := make(map[string][]byte, len(e.cfg.Metadata)+2)
	for k, v := range e.cfg.Metadata {
		meta[k] = v
	}
	meta[MetaSchema] = []byte(e.typ.String())
	meta[MetaCodec] = []byte(e.codec.Name())
	return &Header{Meta: meta, Sync: e.sync}
}

// Encode appends v to the current block. An invalid value returns a
// *types.ValidationError and leaves the block as it was.
func (e *BlockEncoder) Encode(v any) error {
	if e.state == EncoderClosed {
		return ErrClosed
	}
	if e.err != nil {
		return e.err
	}

	start := e.pending.Pos()
	if err := e.typ.Write(e.pending, v); err != nil {
		e.pending.Reset(start)
		return err
	}
	if !e.pending.Valid() {
		// The record did not fit: grow and write it again from its start.
		e.pending.Grow(e.pending.Pos())
		e.pending.Reset(start)
		if err := e.typ.Write(e.pending, v); err != nil {
			e.pending.Reset(start)
			return err
		}
	}
	e.count++

	if e.pending.Pos() >= e.cfg.BlockSize || (e.cfg.BlockCount > 0 && e.count >= e.cfg.BlockCount) {
		return e.Flush()
	}
	return nil
}

// Flush writes the header if it is still due and then the pending records
// as one block.
func (e *BlockEncoder) Flush() error {
	if e.err != nil {
		return e.err
	}
	if e.state == EncoderClosed {
		return ErrClosed
	}
	if !e.wroteHeader {
		if err := e.writeHeader(); err != nil {
			return e.fail(err)
		}
	}
	if e.count == 0 {
		return nil
	}

	e.state = Flushing
	raw := e.pending.Bytes()
	compressed, err := e.codec.Compress(raw)
	if err != nil {
		return e.fail(fmt.Errorf("%s codec: %w", e.codec.Name(), err))
	}
	out := tap.Encode(func(tp *tap.Tap) {
		WriteBlock(tp, Block{Count: int64(e.count), Data: compressed}, e.sync)
	}, len(compressed)+2*10+SyncSize)
	if _, err := e.w.Write(out); err != nil {
		return e.fail(err)
	}
	e.observer.BlockWritten(e.count, len(raw), len(compressed))

	e.pending.Reset(0)
	e.count = 0
	e.state = Open
	return nil
}

func (e *BlockEncoder) writeHeader() error {
	e.wroteHeader = true
	if e.cfg.OmitHeader {
		return nil
	}
	h := e.Header()
	out := tap.Encode(func(tp *tap.Tap) { WriteHeader(tp, h) }, 256+len(h.Meta[MetaSchema]))
	_, err := e.w.Write(out)
	return err
}

// Close flushes pending records and stops the encoder. An encoder closed
// without records still writes a valid header-only container. The
// underlying writer is not closed.
func (e *BlockEncoder) Close() error {
	if e.state == EncoderClosed {
		return e.err
	}
	err := e.Flush()
	e.state = EncoderClosed
	return err
}

func (e *BlockEncoder) fail(err error) error {
	e.err = err
	e.state = Open
	return err
}
