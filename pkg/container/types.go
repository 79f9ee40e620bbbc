package container

import (
	"errors"

	"github.com/ssargent/avrokit/pkg/codec"
	"github.com/ssargent/avrokit/pkg/types"
)

// Container layout constants
const (
	Magic      = "Obj\x01"
	SyncSize   = 16
	MetaSchema = "avro.schema"
	MetaCodec  = "avro.codec"

	// DefaultBlockSize is the payload size at which an encoder emits a block.
	DefaultBlockSize = 64 * 1024
	// DefaultChunkSize is how much a Reader pulls from its source at once.
	DefaultChunkSize = 64 * 1024
)

// Errors
var (
	ErrBadMagic      = errors.New("avro: not an object container (bad magic)")
	ErrMissingSchema = errors.New("avro: container header has no avro.schema")
	ErrCorruptBlock  = errors.New("avro: corrupt block")
	ErrTruncatedFile = errors.New("avro: truncated container")
	ErrClosed        = errors.New("avro: container stream is closed")

	// ErrUnsupportedCodec is returned when the header names a codec missing
	// from the registry.
	ErrUnsupportedCodec = codec.ErrUnsupportedCodec
)

// errNeedMore reports that a header or block is not fully buffered yet.
// It never leaves this package.
var errNeedMore = errors.New("container: need more input")

// Observer receives block level events from encoders and decoders. All
// methods are called synchronously on the encoding or decoding goroutine.
type Observer interface {
	BlockWritten(records, rawBytes, compressedBytes int)
	BlockRead(records, compressedBytes int)
	DecodeFailed(err error)
}

type nopObserver struct{}

func (nopObserver) BlockWritten(int, int, int) {}
func (nopObserver) BlockRead(int, int)         {}
func (nopObserver) DecodeFailed(error)         {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// DecoderConfig holds configuration for a block decoder
type DecoderConfig struct {
	ReaderSchema  *types.Type     // Schema to resolve records into (nil = writer schema)
	Codecs        *codec.Registry // Codec lookup (nil = codec.Default())
	SchemaOptions *types.Options  // Options for parsing the writer schema
	Observer      Observer        // Block events (nil = none)
	NoDecode      bool            // Emit each record as its raw encoded bytes
}

// EncoderConfig holds configuration for a block encoder
type EncoderConfig struct {
	Codec      string            // Codec name (empty = null)
	Codecs     *codec.Registry   // Codec lookup (nil = codec.Default())
	BlockSize  int               // Uncompressed bytes per block (0 = DefaultBlockSize)
	BlockCount int               // Records per block (0 = no limit)
	Metadata   map[string][]byte // Extra header entries; avro.* keys are reserved
	SyncMarker *[SyncSize]byte   // Fixed sync marker (nil = random)
	OmitHeader bool              // Emit blocks only, for appending to an existing file
	Observer   Observer          // Block events (nil = none)
}

// ReaderConfig holds configuration for a Reader
type ReaderConfig struct {
	DecoderConfig
	ChunkSize int // Bytes per read from the source (0 = DefaultChunkSize)
}

// WriterConfig holds configuration for a Writer
type WriterConfig struct {
	EncoderConfig
	BufferSize int  // Write buffer size (0 = bufio default)
	Fsync      bool // Sync the sink after every flush when it supports it
}

// State is the position of a BlockDecoder in its lifecycle.
type State int

// Decoder states
const (
	AwaitingHeader State = iota
	AwaitingBlock
	DecodingRecords
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingHeader:
		return "awaiting-header"
	case AwaitingBlock:
		return "awaiting-block"
	case DecodingRecords:
		return "decoding-records"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// EncoderState is the position of a BlockEncoder in its lifecycle.
type EncoderState int

// Encoder states
const (
	Open EncoderState = iota
	Flushing
	EncoderClosed
)

func (s EncoderState) String() string {
	switch s {
	case Open:
		return "open"
	case Flushing:
		return "flushing"
	case EncoderClosed:
		return "closed"
	}
	return "unknown"
}

func registryOrDefault(r *codec.Registry) *codec.Registry {
	if r == nil {
		return codec.Default()
	}
	return r
}
