// Package metrics exports container block events as Prometheus metrics.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ssargent/avrokit/pkg/container"
	"github.com/ssargent/avrokit/pkg/types"
)

const (
	stageRaw        = "raw"
	stageCompressed = "compressed"
)

// Metrics holds the Prometheus collectors for container traffic. It
// implements container.Observer.
type Metrics struct {
	// Encoding
	blocksWrittenTotal  prometheus.Counter
	recordsWrittenTotal prometheus.Counter
	bytesWrittenTotal   *prometheus.CounterVec

	// Decoding
	blocksReadTotal  prometheus.Counter
	recordsReadTotal prometheus.Counter
	bytesReadTotal   prometheus.Counter
	decodeErrors     *prometheus.CounterVec
}

var _ container.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg. A nil reg
// registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		blocksWrittenTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "avrokit_blocks_written_total",
				Help: "Total number of container blocks written",
			},
		),

		recordsWrittenTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "avrokit_records_written_total",
				Help: "Total number of records written to containers",
			},
		),

		bytesWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avrokit_bytes_written_total",
				Help: "Block payload bytes written, before and after compression",
			},
			[]string{"stage"},
		),

		blocksReadTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "avrokit_blocks_read_total",
				Help: "Total number of container blocks decoded",
			},
		),

		recordsReadTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "avrokit_records_read_total",
				Help: "Total number of records decoded from containers",
			},
		),

		bytesReadTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "avrokit_bytes_read_total",
				Help: "Compressed block payload bytes decoded",
			},
		),

		decodeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avrokit_decode_errors_total",
				Help: "Container decode failures by kind",
			},
			[]string{"kind"},
		),
	}
}

// BlockWritten records a flushed block
func (m *Metrics) BlockWritten(records, rawBytes, compressedBytes int) {
	m.blocksWrittenTotal.Inc()
	m.recordsWrittenTotal.Add(float64(records))
	m.bytesWrittenTotal.WithLabelValues(stageRaw).Add(float64(rawBytes))
	m.bytesWrittenTotal.WithLabelValues(stageCompressed).Add(float64(compressedBytes))
}

// BlockRead records a decoded block
func (m *Metrics) BlockRead(records, compressedBytes int) {
	m.blocksReadTotal.Inc()
	m.recordsReadTotal.Add(float64(records))
	m.bytesReadTotal.Add(float64(compressedBytes))
}

// DecodeFailed records a decoder failure under its error kind
func (m *Metrics) DecodeFailed(err error) {
	m.decodeErrors.WithLabelValues(ErrorKind(err)).Inc()
}

// ErrorKind maps a container or type system error to a short label value.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, container.ErrBadMagic):
		return "bad_magic"
	case errors.Is(err, container.ErrTruncatedFile):
		return "truncated"
	case errors.Is(err, container.ErrCorruptBlock):
		return "corrupt_block"
	case errors.Is(err, container.ErrUnsupportedCodec):
		return "unsupported_codec"
	case errors.Is(err, container.ErrMissingSchema):
		return "missing_schema"
	case errors.Is(err, types.ErrIncompatibleSchema):
		return "incompatible_schema"
	case errors.Is(err, types.ErrInvalidSchema), errors.Is(err, types.ErrUnresolvedReference):
		return "invalid_schema"
	}
	return "other"
}

// WriteTextfile writes everything g gathers to path in the text format read
// by the node exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}
