package container

import (
	"io"
)

// Reader provides sequential access to the records of a container read
// from an io.Reader. It pulls ChunkSize bytes at a time into a
// BlockDecoder, and only when the decoder has no records left.
type Reader struct {
	src    io.Reader
	dec    *BlockDecoder
	chunk  []byte
	record any
	eof    bool
	err    error
}

// NewReader creates a reader over src.
func NewReader(src io.Reader, cfg ReaderConfig) *Reader {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Reader{
		src:   src,
		dec:   NewBlockDecoder(cfg.DecoderConfig),
		chunk: make([]byte, cfg.ChunkSize),
	}
}

// Next advances to the next record. It returns false at the end of the
// container or on error; Err tells the two apart.
func (r *Reader) Next() bool {
	for {
		if v, ok := r.dec.Next(); ok {
			r.record = v
			return true
		}
		r.record = nil
		if r.err != nil {
			return false
		}
		if err := r.dec.Err(); err != nil {
			r.err = err
			return false
		}
		if r.eof {
			return false
		}
		r.pull()
	}
}

// pull reads one chunk from the source into the decoder.
func (r *Reader) pull() {
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		if _, werr := r.dec.Write(r.chunk[:n]); werr != nil {
			r.err = werr
			return
		}
	}
	switch err {
	case nil:
	case io.EOF:
		r.eof = true
		if cerr := r.dec.Close(); cerr != nil {
			r.err = cerr
		}
	default:
		r.err = err
	}
}

// Record returns the record Next advanced to.
func (r *Reader) Record() any { return r.record }

// Err returns the first error met, or nil after a clean end.
func (r *Reader) Err() error { return r.err }

// Header reads from the source until the header has been parsed.
func (r *Reader) Header() (*Header, error) {
	for r.dec.Header() == nil {
		if r.err != nil {
			return nil, r.err
		}
		if err := r.dec.Err(); err != nil {
			r.err = err
			return nil, err
		}
		if r.eof {
			return nil, ErrTruncatedFile
		}
		r.pull()
	}
	return r.dec.Header(), nil
}

// Decoder returns the underlying block decoder.
func (r *Reader) Decoder() *BlockDecoder { return r.dec }

// Close closes the source if it is an io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadAll decodes every record of the container held in b.
func ReadAll(b []byte, cfg DecoderConfig) ([]any, error) {
	dec := NewBlockDecoder(cfg)
	if _, err := dec.Write(b); err != nil {
		return nil, err
	}
	closeErr := dec.Close()

	var records []any
	for {
		v, ok := dec.Next()
		if !ok {
			break
		}
		records = append(records, v)
	}
	if err := dec.Err(); err != nil {
		return records, err
	}
	return records, closeErr
}
