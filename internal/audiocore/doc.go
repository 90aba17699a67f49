// Package audiocore provides the real-time audio primitives shared by every
// stream direction in audiobridge: frame format descriptors, owned audio
// buffers, a single-producer/single-consumer ring buffer that never blocks
// the hardware callback, and the format conversions applied at pipeline
// boundaries.
//
// Architecture overview:
//
//	network payload -> ingest (decode + convert) -> RingBuffer -> render (hardware pull)
//	hardware tap    -> egress (convert + chunk)  -> RingBuffer -> drain (encode) -> sender
//
// Buffers flowing through one pipeline stage always share a single
// FrameFormat; conversions happen only at explicit Converter boundaries.
package audiocore
