package container

import (
	"fmt"

	"github.com/ssargent/avrokit/pkg/codec"
	"github.com/ssargent/avrokit/pkg/tap"
	"github.com/ssargent/avrokit/pkg/types"
)

// maxQueuePrealloc caps the record queue allocation a block's declared
// count can trigger.
const maxQueuePrealloc = 4096

// BlockDecoder turns container bytes pushed through Write into records
// pulled through Next.
//
// Write buffers input, parses the header once and then decodes blocks, but
// only while no decoded records are waiting: a new block is decoded when
// Next drains the previous one. Input that stops short of a header or block
// is buffered until more arrives. Close marks the end of input.
//
// A BlockDecoder is not safe for concurrent use.
type BlockDecoder struct {
	cfg      DecoderConfig
	observer Observer

	state    State
	in       *tap.Tap
	header   *Header
	writer   *types.Type
	resolver *types.Resolver
	codec    codec.Codec

	queue    []any
	ended    bool
	err      error
	closeErr error
}

// NewBlockDecoder creates a decoder awaiting a header.
func NewBlockDecoder(cfg DecoderConfig) *BlockDecoder {
	return &BlockDecoder{
		cfg:      cfg,
		observer: observerOrNop(cfg.Observer),
		state:    AwaitingHeader,
		in:       tap.New(nil),
	}
}

// Write buffers p and decodes as far as the buffered input and the record
// queue allow. Short input is not an error. Errors are sticky.
func (d *BlockDecoder) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.ended {
		return 0, ErrClosed
	}
	d.in.Append(p)

	if d.state == AwaitingHeader {
		if err := d.readHeader(); err != nil {
			return len(p), err
		}
	}
	d.fill()
	return len(p), d.err
}

func (d *BlockDecoder) readHeader() error {
	h, err := ReadHeader(d.in)
	if err == errNeedMore {
		return nil
	}
	if err != nil {
		return d.fail(err)
	}

	writer, err := h.Schema(d.cfg.SchemaOptions)
	if err != nil {
		return d.fail(fmt.Errorf("writer schema: %w", err))
	}
	c, err := registryOrDefault(d.cfg.Codecs).Get(h.CodecName())
	if err != nil {
		return d.fail(err)
	}
	if d.cfg.ReaderSchema != nil && !d.cfg.NoDecode {
		res, err := d.cfg.ReaderSchema.CreateResolver(writer)
		if err != nil {
			return d.fail(err)
		}
		d.resolver = res
	}

	d.header, d.writer, d.codec = h, writer, c
	d.in.Compact()
	d.state = AwaitingBlock
	return nil
}

// fill decodes buffered blocks until one yields records or input runs out.
func (d *BlockDecoder) fill() {
	for d.err == nil && d.state == AwaitingBlock && len(d.queue) == 0 {
		if !d.nextBlock() {
			return
		}
	}
}

// nextBlock decodes one buffered block into the queue. It reports false
// when no complete block is buffered or decoding failed.
func (d *BlockDecoder) nextBlock() bool {
	blk, err := readBlock(d.in, d.header.Sync)
	if err == errNeedMore {
		if d.ended {
			if d.in.Remaining() > 0 {
				d.fail(fmt.Errorf("%w: input ended inside a block", ErrTruncatedFile))
			} else {
				d.state = Closed
			}
		}
		return false
	}
	if err != nil {
		d.fail(err)
		return false
	}
	d.compact()

	records, err := d.decodeBlock(blk)
	if err != nil {
		d.fail(err)
		return false
	}
	d.observer.BlockRead(len(records), len(blk.Data))
	d.queue = records
	if len(records) > 0 {
		d.state = DecodingRecords
	}
	return true
}

// decodeBlock decompresses a block and decodes exactly Count records from
// it. It never returns part of a block.
func (d *BlockDecoder) decodeBlock(blk Block) ([]any, error) {
	payload, err := d.codec.Decompress(blk.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s codec: %v", ErrCorruptBlock, d.codec.Name(), err)
	}

	n := blk.Count
	if n > maxQueuePrealloc {
		n = maxQueuePrealloc
	}
	records := make([]any, 0, n)
	tp := tap.New(payload)
	for i := int64(0); i < blk.Count; i++ {
		start := tp.Pos()
		var v any
		switch {
		case d.cfg.NoDecode:
			d.writer.Skip(tp)
			if tp.Valid() {
				raw := make([]byte, tp.Pos()-start)
				copy(raw, payload[start:tp.Pos()])
				v = raw
			}
		case d.resolver != nil:
			v = d.resolver.Read(tp)
		default:
			v = d.writer.Read(tp)
		}
		if !tp.Valid() {
			return nil, fmt.Errorf("%w: record %d of %d does not decode", ErrCorruptBlock, i+1, blk.Count)
		}
		records = append(records, v)
	}
	if tp.Remaining() > 0 {
		return nil, fmt.Errorf("%w: %d bytes left after %d records", ErrCorruptBlock, tp.Remaining(), blk.Count)
	}
	return records, nil
}

// Next returns the next decoded record. When the queue is empty it decodes
// the next buffered block; false means more input (or Close) is needed,
// the stream has ended, or an error occurred (see Err).
func (d *BlockDecoder) Next() (any, bool) {
	for len(d.queue) == 0 {
		if d.state == DecodingRecords {
			d.state = AwaitingBlock
		}
		if d.err != nil || d.state != AwaitingBlock || !d.nextBlock() {
			return nil, false
		}
	}
	v := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	if len(d.queue) == 0 {
		d.state = AwaitingBlock
		if d.ended && d.in.Remaining() == 0 {
			d.state = Closed
		}
	}
	return v, true
}

// Close marks the end of input. It returns nil when the input ended on a
// block boundary after a complete header, and ErrTruncatedFile when it
// ended inside the header or a block. Records from complete blocks remain
// available through Next.
func (d *BlockDecoder) Close() error {
	if d.ended {
		if d.err != nil {
			return d.err
		}
		return d.closeErr
	}
	d.ended = true
	if d.err != nil {
		return d.err
	}

	if d.state == AwaitingHeader {
		return d.fail(endOfHeaderError(d.in.Tail()))
	}
	if err := scanBlocks(d.in.Tail(), d.header.Sync); err != nil {
		// Complete blocks ahead of the damage are still decoded by Next;
		// the error surfaces once they are drained.
		d.closeErr = err
		return err
	}
	if len(d.queue) == 0 && d.in.Remaining() == 0 {
		d.state = Closed
	}
	return nil
}

// compact drops consumed input once it is most of the buffer, so input
// buffered in one Write is shifted a logarithmic number of times rather
// than once per block.
func (d *BlockDecoder) compact() {
	if d.in.Pos() > d.in.Len()/2 {
		d.in.Compact()
	}
}

// Err returns the error that stopped the decoder, if any.
func (d *BlockDecoder) Err() error { return d.err }

// Header returns the parsed header, or nil before it has been read.
func (d *BlockDecoder) Header() *Header { return d.header }

// WriterType returns the writer schema, or nil before the header.
func (d *BlockDecoder) WriterType() *types.Type { return d.writer }

// State returns the decoder's current state.
func (d *BlockDecoder) State() State { return d.state }

func (d *BlockDecoder) fail(err error) error {
	d.err = err
	d.queue = nil
	d.state = Closed
	d.observer.DecodeFailed(err)
	return err
}
