// Package codec provides the block compression codecs of Avro container
// files.
//
// A container file names its codec in the avro.codec header entry and
// compresses each block payload with it. Codecs are looked up by that name
// in a Registry.
//
// # Built-in Codecs
//
//   - null: blocks are stored as is
//   - deflate: raw RFC 1951 deflate data, no zlib or gzip framing
//   - snappy: a snappy block followed by the 4 byte big-endian CRC-32
//     (IEEE) of the uncompressed data
//   - zstandard: a single zstd frame
//
// # Usage
//
//	reg := codec.NewRegistry()
//	c, err := reg.Get("deflate")
//	if err != nil {
//	    return err // errors.Is(err, codec.ErrUnsupportedCodec)
//	}
//	compressed, err := c.Compress(payload)
//
// Applications add codecs of their own with Register. The package-level
// Register and Get work on a default registry holding the built-ins.
//
// # Thread Safety
//
// Registries and the built-in codecs are safe for concurrent use.
package codec
