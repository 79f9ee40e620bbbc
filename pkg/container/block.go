package container

import (
	"bytes"
	"fmt"

	"github.com/ssargent/avrokit/pkg/tap"
)

// Block is one framed batch of records. Data holds the codec output.
type Block struct {
	Count int64
	Data  []byte
}

// WriteBlock writes the record count, the length-prefixed payload and the
// sync marker.
func WriteBlock(tp *tap.Tap, b Block, sync [SyncSize]byte) {
	tp.WriteLong(b.Count)
	tp.WriteBytes(b.Data)
	tp.WriteFixed(sync[:])
}

// readBlock parses one block at the tap's position. A block that is not
// fully buffered rewinds the tap and yields errNeedMore.
func readBlock(tp *tap.Tap, sync [SyncSize]byte) (Block, error) {
	start := tp.Pos()
	count := tp.ReadLong()
	data := tp.ReadBytes()
	marker := tp.ReadFixed(SyncSize)

	switch {
	case tp.Corrupt():
		return Block{}, fmt.Errorf("%w: malformed block framing at offset %d", ErrCorruptBlock, start)
	case !tp.Valid():
		tp.Reset(start)
		return Block{}, errNeedMore
	case count < 0:
		return Block{}, fmt.Errorf("%w: negative record count %d", ErrCorruptBlock, count)
	case !bytes.Equal(marker, sync[:]):
		return Block{}, fmt.Errorf("%w: sync marker mismatch", ErrCorruptBlock)
	}
	if data == nil {
		data = []byte{}
	}
	return Block{Count: count, Data: data}, nil
}

// scanBlocks walks the block framing in buf without decompressing, to find
// out whether buf ends on a block boundary.
func scanBlocks(buf []byte, sync [SyncSize]byte) error {
	tp := tap.New(buf)
	for tp.Remaining() > 0 {
		start := tp.Pos()
		tp.SkipLong()
		tp.SkipBytes()
		marker := tp.ReadFixed(SyncSize)
		switch {
		case tp.Corrupt():
			return fmt.Errorf("%w: malformed block framing at offset %d", ErrCorruptBlock, start)
		case !tp.Valid():
			return fmt.Errorf("%w: input ended inside the block at offset %d", ErrTruncatedFile, start)
		case !bytes.Equal(marker, sync[:]):
			return fmt.Errorf("%w: sync marker mismatch", ErrCorruptBlock)
		}
	}
	return nil
}
