package container

import (
	"bufio"
	"io"
	"sync"

	"github.com/ssargent/avrokit/pkg/types"
)

// Writer appends records to a container through a buffered sink.
type Writer struct {
	sink   io.Writer
	buf    *bufio.Writer
	enc    *BlockEncoder
	config WriterConfig
	mutex  sync.Mutex
	offset int64 // Bytes handed to the sink
}

// NewWriter creates a writer of records of type typ to sink.
func NewWriter(sink io.Writer, typ *types.Type, config WriterConfig) (*Writer, error) {
	w := &Writer{sink: sink, config: config}
	if config.BufferSize > 0 {
		w.buf = bufio.NewWriterSize(countingWriter{w: sink, n: &w.offset}, config.BufferSize)
	} else {
		w.buf = bufio.NewWriter(countingWriter{w: sink, n: &w.offset})
	}

	enc, err := NewBlockEncoder(w.buf, typ, config.EncoderConfig)
	if err != nil {
		return nil, err
	}
	w.enc = enc
	return w, nil
}

// Append adds one record.
func (w *Writer) Append(v any) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.enc.Encode(v)
}

// Flush writes pending records as a block and pushes buffered bytes to the
// sink.
func (w *Writer) Flush() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if err := w.enc.Flush(); err != nil {
		return err
	}
	return w.sync()
}

// sync flushes the buffer and, when configured, the sink itself
func (w *Writer) sync() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.config.Fsync {
		if s, ok := w.sink.(interface{ Sync() error }); ok {
			return s.Sync()
		}
	}
	return nil
}

// Close flushes everything and closes the sink if it is an io.Closer.
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	err := w.enc.Close()
	if err == nil {
		err = w.sync()
	}
	if c, ok := w.sink.(io.Closer); ok {
		if closeErr := c.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// Size returns the number of bytes written to the sink so far.
func (w *Writer) Size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}

// Sync returns the container's sync marker.
func (w *Writer) Sync() [SyncSize]byte { return w.enc.Sync() }

type countingWriter struct {
	w io.Writer
	n *int64
}

func (c countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	*c.n += int64(n)
	return n, err
}
