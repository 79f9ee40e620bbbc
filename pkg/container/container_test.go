package container

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/avrokit/pkg/codec"
	"github.com/ssargent/avrokit/pkg/tap"
	"github.com/ssargent/avrokit/pkg/types"
)

const eventSchema = `{
	"type": "record",
	"name": "Event",
	"namespace": "org.example",
	"fields": [
		{"name": "id", "type": "long"},
		{"name": "name", "type": "string"}
	]
}`

func event(i int) map[string]any {
	return map[string]any{"id": int64(i), "name": fmt.Sprintf("event-%d", i)}
}

// encodeEvents writes n events and returns the container bytes.
func encodeEvents(t *testing.T, n int, cfg EncoderConfig) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := NewBlockEncoder(&buf, types.MustParse(eventSchema), cfg)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, enc.Encode(event(i)))
	}
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

type recordingObserver struct {
	written []int
	read    []int
	failed  []error
}

func (o *recordingObserver) BlockWritten(records, _, _ int) { o.written = append(o.written, records) }
func (o *recordingObserver) BlockRead(records, _ int)       { o.read = append(o.read, records) }
func (o *recordingObserver) DecodeFailed(err error)         { o.failed = append(o.failed, err) }

func TestRoundTrip_Codecs(t *testing.T) {
	for _, name := range codec.Default().Names() {
		for _, n := range []int{0, 1, 10000} {
			t.Run(fmt.Sprintf("%s/%d", name, n), func(t *testing.T) {
				data := encodeEvents(t, n, EncoderConfig{Codec: name, BlockSize: 4096})

				records, err := ReadAll(data, DecoderConfig{})
				require.NoError(t, err)
				require.Len(t, records, n)
				for i, r := range records {
					assert.Equal(t, event(i), r)
				}
			})
		}
	}
}

func TestHeader_Contents(t *testing.T) {
	data := encodeEvents(t, 3, EncoderConfig{
		Codec:    codec.Deflate,
		Metadata: map[string][]byte{"owner": []byte("ingest")},
	})

	h, err := ExtractHeader(bytes.NewReader(data), 8)
	require.NoError(t, err)
	assert.Equal(t, codec.Deflate, h.CodecName())
	assert.Equal(t, []byte("ingest"), h.Meta["owner"])

	writer, err := h.Schema(nil)
	require.NoError(t, err)
	assert.Equal(t, "org.example.Event", writer.Name())

	// The last sync marker of the file is the header's.
	assert.Equal(t, h.Sync[:], data[len(data)-SyncSize:])
}

func TestHeader_DefaultCodec(t *testing.T) {
	h := &Header{Meta: map[string][]byte{MetaSchema: []byte(`"int"`)}}
	assert.Equal(t, codec.Null, h.CodecName())

	_, err := (&Header{Meta: map[string][]byte{}}).Schema(nil)
	assert.ErrorIs(t, err, ErrMissingSchema)
}

func TestHeader_WriteIsDeterministic(t *testing.T) {
	h := &Header{Meta: map[string][]byte{
		MetaSchema: []byte(`"int"`),
		MetaCodec:  []byte("null"),
		"b":        []byte("2"),
		"a":        []byte("1"),
	}}
	first := tap.Encode(func(tp *tap.Tap) { WriteHeader(tp, h) }, 8)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, tap.Encode(func(tp *tap.Tap) { WriteHeader(tp, h) }, 8))
	}

	parsed, err := ReadHeader(tap.New(first))
	require.NoError(t, err)
	assert.Equal(t, h.Meta, parsed.Meta)
}

func TestDecoder_FlippedSyncByte(t *testing.T) {
	data := encodeEvents(t, 5, EncoderConfig{})
	data[len(data)-1] ^= 0xff

	obs := &recordingObserver{}
	_, err := ReadAll(data, DecoderConfig{Observer: obs})
	assert.ErrorIs(t, err, ErrCorruptBlock)
	assert.Len(t, obs.failed, 1)
}

func TestDecoder_EverySyncByteIsChecked(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewBlockEncoder(&buf, types.MustParse(eventSchema), EncoderConfig{BlockCount: 10})
	require.NoError(t, err)
	var blockEnds []int
	for i := 0; i < 30; i++ {
		require.NoError(t, enc.Encode(event(i)))
		if (i+1)%10 == 0 {
			blockEnds = append(blockEnds, buf.Len())
		}
	}
	require.NoError(t, enc.Close())
	clean := buf.Bytes()

	// Damage the sync marker of the first and of the second block; the
	// second case has the first block's records decoded ahead of the damage.
	for block, end := range blockEnds[:2] {
		for k := 0; k < SyncSize; k++ {
			t.Run(fmt.Sprintf("block %d byte %d", block, k), func(t *testing.T) {
				data := bytes.Clone(clean)
				data[end-SyncSize+k] ^= 0x01

				records, err := ReadAll(data, DecoderConfig{})
				assert.ErrorIs(t, err, ErrCorruptBlock)
				assert.Len(t, records, 10*block)

				dec := NewBlockDecoder(DecoderConfig{})
				_, err = dec.Write(data)
				if block == 0 {
					assert.ErrorIs(t, err, ErrCorruptBlock)
					return
				}
				require.NoError(t, err)
				for i := 0; i < 10*block; i++ {
					_, ok := dec.Next()
					require.True(t, ok)
				}
				_, ok := dec.Next()
				assert.False(t, ok)
				assert.ErrorIs(t, dec.Err(), ErrCorruptBlock)
			})
		}
	}
}

func TestDecoder_BufferedInputIsNotShiftedPerBlock(t *testing.T) {
	const blocks = 2000
	data := encodeEvents(t, blocks, EncoderConfig{BlockCount: 1})

	dec := NewBlockDecoder(DecoderConfig{})
	_, err := dec.Write(data)
	require.NoError(t, err)
	require.NoError(t, dec.Close())

	shifts, size, n := 0, dec.in.Len(), 0
	for {
		_, ok := dec.Next()
		if !ok {
			break
		}
		n++
		if dec.in.Len() != size {
			shifts++
			size = dec.in.Len()
		}
	}
	require.NoError(t, dec.Err())
	assert.Equal(t, blocks, n)
	assert.Less(t, shifts, 30)
}

func TestDecoder_TruncatedInsideBlock(t *testing.T) {
	data := encodeEvents(t, 100, EncoderConfig{BlockCount: 10})

	records, err := ReadAll(data[:len(data)-5], DecoderConfig{})
	assert.ErrorIs(t, err, ErrTruncatedFile)
	assert.Len(t, records, 90)
}

func TestDecoder_TruncatedAtBlockBoundary(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewBlockEncoder(&buf, types.MustParse(eventSchema), EncoderConfig{BlockCount: 10})
	require.NoError(t, err)

	boundary := 0
	for i := 0; i < 100; i++ {
		require.NoError(t, enc.Encode(event(i)))
		if i == 49 {
			boundary = buf.Len()
		}
	}
	require.NoError(t, enc.Close())

	records, err := ReadAll(buf.Bytes()[:boundary], DecoderConfig{})
	require.NoError(t, err)
	assert.Len(t, records, 50)
}

func TestDecoder_UnknownCodec(t *testing.T) {
	h := &Header{Meta: map[string][]byte{
		MetaSchema: []byte(`"int"`),
		MetaCodec:  []byte("lzma"),
	}}
	data := tap.Encode(func(tp *tap.Tap) { WriteHeader(tp, h) }, 64)

	dec := NewBlockDecoder(DecoderConfig{})
	_, err := dec.Write(data)
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
	assert.Equal(t, Closed, dec.State())

	// The error is sticky.
	_, err = dec.Write([]byte{0})
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestDecoder_HeaderOnly(t *testing.T) {
	data := encodeEvents(t, 0, EncoderConfig{Codec: codec.Snappy})
	assert.True(t, IsContainer(data))

	dec := NewBlockDecoder(DecoderConfig{})
	_, err := dec.Write(data)
	require.NoError(t, err)
	assert.Equal(t, AwaitingBlock, dec.State())
	require.NotNil(t, dec.Header())

	require.NoError(t, dec.Close())
	_, ok := dec.Next()
	assert.False(t, ok)
	assert.Equal(t, Closed, dec.State())
}

func TestDecoder_ByteAtATime(t *testing.T) {
	data := encodeEvents(t, 50, EncoderConfig{Codec: codec.Deflate, BlockCount: 7})

	dec := NewBlockDecoder(DecoderConfig{})
	var records []any
	drain := func() {
		for {
			v, ok := dec.Next()
			if !ok {
				return
			}
			records = append(records, v)
		}
	}
	for i := range data {
		_, err := dec.Write(data[i : i+1])
		require.NoError(t, err)
		drain()
	}
	require.NoError(t, dec.Close())
	drain()

	require.NoError(t, dec.Err())
	require.Len(t, records, 50)
	assert.Equal(t, event(49), records[49])
	assert.Equal(t, Closed, dec.State())
}

func TestDecoder_StateTransitions(t *testing.T) {
	data := encodeEvents(t, 3, EncoderConfig{})
	dec := NewBlockDecoder(DecoderConfig{})
	assert.Equal(t, AwaitingHeader, dec.State())

	_, err := dec.Write(data[:3])
	require.NoError(t, err)
	assert.Equal(t, AwaitingHeader, dec.State())

	_, err = dec.Write(data[3:])
	require.NoError(t, err)
	assert.Equal(t, DecodingRecords, dec.State())

	require.NoError(t, dec.Close())
	for i := 0; i < 3; i++ {
		_, ok := dec.Next()
		require.True(t, ok)
	}
	assert.Equal(t, Closed, dec.State())

	_, err = dec.Write([]byte{0})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDecoder_Backpressure(t *testing.T) {
	data := encodeEvents(t, 30, EncoderConfig{BlockCount: 10})

	obs := &recordingObserver{}
	dec := NewBlockDecoder(DecoderConfig{Observer: obs})
	_, err := dec.Write(data)
	require.NoError(t, err)

	// Only the first block is decoded until its records are taken.
	assert.Equal(t, []int{10}, obs.read)
	for i := 0; i < 10; i++ {
		_, ok := dec.Next()
		require.True(t, ok)
	}
	assert.Equal(t, []int{10}, obs.read)

	_, ok := dec.Next()
	require.True(t, ok)
	assert.Equal(t, []int{10, 10}, obs.read)
}

func TestDecoder_ReaderSchema(t *testing.T) {
	data := encodeEvents(t, 4, EncoderConfig{})
	reader := types.MustParse(`{
		"type": "record",
		"name": "Event",
		"namespace": "org.example",
		"fields": [
			{"name": "name", "type": "string"},
			{"name": "level", "type": "int", "default": 3}
		]
	}`)

	records, err := ReadAll(data, DecoderConfig{ReaderSchema: reader})
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, map[string]any{"name": "event-2", "level": int32(3)}, records[2])
}

func TestDecoder_IncompatibleReaderSchema(t *testing.T) {
	data := encodeEvents(t, 1, EncoderConfig{})
	_, err := ReadAll(data, DecoderConfig{ReaderSchema: types.MustParse(`"string"`)})
	assert.ErrorIs(t, err, types.ErrIncompatibleSchema)
}

func TestDecoder_NoDecode(t *testing.T) {
	data := encodeEvents(t, 5, EncoderConfig{Codec: codec.Zstandard})
	typ := types.MustParse(eventSchema)

	records, err := ReadAll(data, DecoderConfig{NoDecode: true})
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, r := range records {
		want, err := typ.Encode(event(i))
		require.NoError(t, err)
		assert.Equal(t, want, r)
	}
}

func TestDecoder_BadMagic(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"wrong version", []byte("Obj\x02rest of file"), ErrBadMagic},
		{"short garbage", []byte("XY"), ErrBadMagic},
		{"magic prefix", []byte("Ob"), ErrTruncatedFile},
		{"empty", nil, ErrTruncatedFile},
		{"header cut", encodeEvents(t, 1, EncoderConfig{})[:20], ErrTruncatedFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadAll(tt.input, DecoderConfig{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecoder_TrailingBytesInBlock(t *testing.T) {
	data := encodeEvents(t, 0, EncoderConfig{})
	h, err := ReadHeader(tap.New(data))
	require.NoError(t, err)

	// A block of zero records must not carry payload bytes.
	blk := tap.Encode(func(tp *tap.Tap) {
		WriteBlock(tp, Block{Count: 0, Data: []byte{0x02, 0x04}}, h.Sync)
	}, 32)
	_, err = ReadAll(append(data, blk...), DecoderConfig{})
	assert.ErrorIs(t, err, ErrCorruptBlock)
}

func TestIsContainer(t *testing.T) {
	data := encodeEvents(t, 2, EncoderConfig{})
	assert.True(t, IsContainer(data))
	assert.False(t, IsContainer([]byte("not a container")))
	assert.False(t, IsContainer(data[:10]))

	h := &Header{Meta: map[string][]byte{MetaSchema: []byte("{oops")}}
	assert.False(t, IsContainer(tap.Encode(func(tp *tap.Tap) { WriteHeader(tp, h) }, 64)))
}

func TestEncoder_ReservedMetadata(t *testing.T) {
	_, err := NewBlockEncoder(&bytes.Buffer{}, types.MustParse(`"int"`), EncoderConfig{
		Metadata: map[string][]byte{"avro.schema": []byte(`"long"`)},
	})
	assert.Error(t, err)

	_, err = NewBlockEncoder(&bytes.Buffer{}, types.MustParse(`"int"`), EncoderConfig{Codec: "lzma"})
	assert.ErrorIs(t, err, ErrUnsupportedCodec)

	_, err = NewBlockEncoder(&bytes.Buffer{}, nil, EncoderConfig{})
	assert.Error(t, err)
}

func TestEncoder_BlockCount(t *testing.T) {
	obs := &recordingObserver{}
	data := encodeEvents(t, 25, EncoderConfig{BlockCount: 10, Observer: obs})
	assert.Equal(t, []int{10, 10, 5}, obs.written)

	records, err := ReadAll(data, DecoderConfig{})
	require.NoError(t, err)
	assert.Len(t, records, 25)
}

func TestEncoder_BlockSize(t *testing.T) {
	obs := &recordingObserver{}
	data := encodeEvents(t, 100, EncoderConfig{BlockSize: 64, Observer: obs})
	assert.Greater(t, len(obs.written), 5)

	total := 0
	for _, n := range obs.written {
		total += n
	}
	assert.Equal(t, 100, total)

	records, err := ReadAll(data, DecoderConfig{})
	require.NoError(t, err)
	assert.Len(t, records, 100)
}

func TestEncoder_LargeRecord(t *testing.T) {
	big := map[string]any{"id": int64(1), "name": string(bytes.Repeat([]byte("x"), 200_000))}
	var buf bytes.Buffer
	enc, err := NewBlockEncoder(&buf, types.MustParse(eventSchema), EncoderConfig{BlockSize: 16})
	require.NoError(t, err)
	require.NoError(t, enc.Encode(big))
	require.NoError(t, enc.Close())

	records, err := ReadAll(buf.Bytes(), DecoderConfig{})
	require.NoError(t, err)
	assert.Equal(t, []any{big}, records)
}

func TestEncoder_InvalidRecord(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewBlockEncoder(&buf, types.MustParse(eventSchema), EncoderConfig{})
	require.NoError(t, err)

	require.NoError(t, enc.Encode(event(0)))
	err = enc.Encode(map[string]any{"id": "one", "name": "bad"})
	var verr *types.ValidationError
	assert.True(t, errors.As(err, &verr))
	require.NoError(t, enc.Encode(event(1)))
	require.NoError(t, enc.Close())

	records, err := ReadAll(buf.Bytes(), DecoderConfig{})
	require.NoError(t, err)
	assert.Equal(t, []any{event(0), event(1)}, records)
}

func TestEncoder_States(t *testing.T) {
	enc, err := NewBlockEncoder(&bytes.Buffer{}, types.MustParse(`"int"`), EncoderConfig{})
	require.NoError(t, err)
	assert.Equal(t, Open, enc.State())

	require.NoError(t, enc.Close())
	assert.Equal(t, EncoderClosed, enc.State())
	assert.ErrorIs(t, enc.Encode(int32(1)), ErrClosed)
	assert.NoError(t, enc.Close())
}

func TestEncoder_SyncMarkers(t *testing.T) {
	a, err := NewBlockEncoder(&bytes.Buffer{}, types.MustParse(`"int"`), EncoderConfig{})
	require.NoError(t, err)
	b, err := NewBlockEncoder(&bytes.Buffer{}, types.MustParse(`"int"`), EncoderConfig{})
	require.NoError(t, err)
	assert.NotEqual(t, a.Sync(), b.Sync())

	fixed := [SyncSize]byte{1, 2, 3}
	c, err := NewBlockEncoder(&bytes.Buffer{}, types.MustParse(`"int"`), EncoderConfig{SyncMarker: &fixed})
	require.NoError(t, err)
	assert.Equal(t, fixed, c.Sync())
}

func TestEncoder_Append(t *testing.T) {
	first := encodeEvents(t, 10, EncoderConfig{Codec: codec.Snappy})

	h, err := ExtractHeader(bytes.NewReader(first), 0)
	require.NoError(t, err)
	writer, err := h.Schema(nil)
	require.NoError(t, err)

	out := bytes.NewBuffer(append([]byte(nil), first...))
	enc, err := NewBlockEncoder(out, writer, EncoderConfig{
		Codec:      h.CodecName(),
		SyncMarker: &h.Sync,
		OmitHeader: true,
	})
	require.NoError(t, err)
	for i := 10; i < 15; i++ {
		require.NoError(t, enc.Encode(event(i)))
	}
	require.NoError(t, enc.Close())

	records, err := ReadAll(out.Bytes(), DecoderConfig{})
	require.NoError(t, err)
	require.Len(t, records, 15)
	assert.Equal(t, event(14), records[14])
}

func TestReader_Chunks(t *testing.T) {
	data := encodeEvents(t, 500, EncoderConfig{Codec: codec.Deflate, BlockCount: 33})

	for _, chunk := range []int{1, 7, 4096, 0} {
		t.Run(fmt.Sprint(chunk), func(t *testing.T) {
			r := NewReader(bytes.NewReader(data), ReaderConfig{ChunkSize: chunk})
			h, err := r.Header()
			require.NoError(t, err)
			assert.Equal(t, codec.Deflate, h.CodecName())

			n := 0
			for r.Next() {
				assert.Equal(t, event(n), r.Record())
				n++
			}
			require.NoError(t, r.Err())
			assert.Equal(t, 500, n)
			assert.NoError(t, r.Close())
		})
	}
}

func TestReader_Truncated(t *testing.T) {
	data := encodeEvents(t, 40, EncoderConfig{BlockCount: 10})
	r := NewReader(bytes.NewReader(data[:len(data)-3]), ReaderConfig{ChunkSize: 64})

	n := 0
	for r.Next() {
		n++
	}
	assert.Equal(t, 30, n)
	assert.ErrorIs(t, r.Err(), ErrTruncatedFile)
}

func TestWriter_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.avro")
	f, err := os.Create(path)
	require.NoError(t, err)

	w, err := NewWriter(f, types.MustParse(eventSchema), WriterConfig{
		EncoderConfig: EncoderConfig{Codec: codec.Zstandard, BlockCount: 100},
		BufferSize:    1024,
		Fsync:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Size())

	for i := 0; i < 250; i++ {
		require.NoError(t, w.Append(event(i)))
	}
	require.NoError(t, w.Flush())
	flushed := w.Size()
	assert.Greater(t, flushed, int64(0))
	require.NoError(t, w.Close())
	assert.GreaterOrEqual(t, w.Size(), flushed)

	in, err := os.Open(path)
	require.NoError(t, err)
	r := NewReader(in, ReaderConfig{})
	defer r.Close()

	n := 0
	for r.Next() {
		n++
	}
	require.NoError(t, r.Err())
	assert.Equal(t, 250, n)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), w.Size())
}
