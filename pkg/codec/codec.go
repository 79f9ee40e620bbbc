package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Codec compresses and decompresses block payloads.
type Codec interface {
	// Name is the value stored under avro.codec.
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Names of the built-in codecs.
const (
	Null      = "null"
	Deflate   = "deflate"
	Snappy    = "snappy"
	Zstandard = "zstandard"
)

var (
	// ErrUnsupportedCodec is returned for a codec name with no registration.
	ErrUnsupportedCodec = errors.New("avro: unsupported codec")
	// ErrDuplicateCodec is returned when a name is registered twice.
	ErrDuplicateCodec = errors.New("avro: codec already registered")
	// ErrChecksum is returned when decompressed data fails its checksum.
	ErrChecksum = errors.New("avro: codec checksum mismatch")
	// ErrTooLarge is returned when a payload inflates past the codec's limit.
	ErrTooLarge = errors.New("avro: decompressed block too large")
)

// DefaultMaxSize is the largest payload the built-in codecs inflate a
// block to.
const DefaultMaxSize = 256 << 20

func maxSizeOrDefault(n int64) int64 {
	if n <= 0 {
		return DefaultMaxSize
	}
	return n
}

// Registry maps codec names to codecs.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry creates a registry holding the built-in codecs.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for _, c := range []Codec{
		NewNull(),
		NewDeflate(DefaultDeflateLevel),
		NewSnappy(),
		NewZstandard(),
	} {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// NewEmptyRegistry creates a registry with no codecs, not even null.
func NewEmptyRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Register adds c under c.Name().
func (r *Registry) Register(c Codec) error {
	if c == nil {
		return fmt.Errorf("codec: register nil codec")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.codecs[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCodec, name)
	}
	r.codecs[name] = c
	return nil
}

// Get returns the codec called name. An empty name means null, as a
// missing avro.codec entry does.
func (r *Registry) Get(name string) (Codec, error) {
	if name == "" {
		name = Null
	}
	r.mu.RLock()
	c, ok := r.codecs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
	}
	return c, nil
}

// Names returns the registered codec names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry *Registry

func init() {
	defaultRegistry = NewRegistry()
}

// Default returns the registry used by the package-level functions.
func Default() *Registry { return defaultRegistry }

// Register adds c to the default registry. It panics if the name is
// taken, since registration happens during program setup.
func Register(c Codec) {
	if err := defaultRegistry.Register(c); err != nil {
		panic(err)
	}
}

// Get returns the codec called name from the default registry.
func Get(name string) (Codec, error) {
	return defaultRegistry.Get(name)
}
