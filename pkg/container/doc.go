// Package container reads and writes Avro object container files.
//
// A container starts with a header (magic, metadata map, sync marker)
// followed by blocks. Each block holds a record count, the codec output of
// the concatenated records and a copy of the sync marker.
//
// BlockEncoder and BlockDecoder work on streams: the encoder accepts
// records and emits bytes, the decoder accepts bytes through Write and
// hands out records through Next. Reader and Writer wrap them around an
// io.Reader or io.Writer.
package container
