package decode

import "io"

// Chunk is an owned, contiguous run of interleaved 16-bit PCM samples.
// Chunks are delivered in bulk rather than per sample so that per-call
// overhead on the playback path stays bounded. A chunk is consumed
// exactly once by the playback engine; the analyzer receives its own
// copy of the value through a channel, never a shared reference.
type Chunk struct {
	Samples []int16 // Interleaved PCM, len == Frames * channel count
	Frames  int     // Number of interleaved frames
	Seq     uint64  // Arrival sequence number, monotonic per stream
	Corrupt bool    // Set when the producing decoder reported corruption
}

// Empty reports whether the chunk carries no samples at all
func (c Chunk) Empty() bool {
	return c.Frames == 0 && len(c.Samples) == 0
}

// ChunkReader is a lazy, finite, non-restartable sequence of sample
// chunks. Next returns io.EOF after the final chunk; reopening a track
// requires a fresh reader.
type ChunkReader interface {
	Next() (Chunk, error)
	Close() error
}

// BufferReader adapts a fully decoded AudioData buffer into a ChunkReader,
// converting wider sample formats down to 16-bit on the fly. It backs the
// playback path for formats the native decoders handle in-process.
type BufferReader struct {
	data        *AudioData
	chunkFrames int
	offset      int // frames already emitted
	seq         uint64
	closed      bool
}

// NewBufferReader wraps decoded audio in a chunked reader. chunkFrames
// bounds the size of each emitted chunk.
func NewBufferReader(data *AudioData, chunkFrames int) *BufferReader {
	if chunkFrames <= 0 {
		chunkFrames = 1024
	}
	return &BufferReader{
		data:        data,
		chunkFrames: chunkFrames,
	}
}

// Next returns the next chunk of up to chunkFrames frames
func (r *BufferReader) Next() (Chunk, error) {
	if r.closed {
		return Chunk{}, io.EOF
	}

	total := r.data.Frames()
	if r.offset >= total {
		return Chunk{}, io.EOF
	}

	frames := r.chunkFrames
	if r.offset+frames > total {
		frames = total - r.offset
	}

	channels := int(r.data.Channels)
	bps := r.data.Format.BytesPerSample()
	start := r.offset * channels * bps

	samples := make([]int16, frames*channels)
	for i := range samples {
		off := start + i*bps
		samples[i] = sampleToS16(r.data.Samples[off:off+bps], r.data.Format)
	}

	r.offset += frames
	r.seq++

	return Chunk{Samples: samples, Frames: frames, Seq: r.seq}, nil
}

// Close releases the underlying buffer
func (r *BufferReader) Close() error {
	r.closed = true
	r.data = nil
	return nil
}

// sampleToS16 reads one little-endian sample and narrows it to 16 bits.
// Wider formats keep their most significant bits.
func sampleToS16(b []byte, format SampleFormat) int16 {
	switch format {
	case FormatS16:
		return int16(b[0]) | int16(b[1])<<8
	case FormatS24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= ^int32(0xFFFFFF)
		}
		return int16(v >> 8)
	case FormatS32:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16 | int32(b[3])<<24
		return int16(v >> 16)
	default:
		return 0
	}
}
