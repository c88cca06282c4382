package session

import (
	"time"

	"screencast/internal/core/domain"
)

// ChunkBuffer accumulates recorded segments for one recording attempt.
// It is not safe for concurrent use; the owning Session serializes access.
type ChunkBuffer struct {
	chunks    []domain.Chunk
	totalSize int64
	lastAt    time.Time
}

func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{}
}

// Append adds a chunk in arrival order and returns the running total.
func (b *ChunkBuffer) Append(chunk domain.Chunk) int64 {
	b.chunks = append(b.chunks, chunk)
	b.totalSize += chunk.SizeBytes
	b.lastAt = chunk.ArrivalTime
	return b.totalSize
}

func (b *ChunkBuffer) TotalSizeBytes() int64 {
	return b.totalSize
}

func (b *ChunkBuffer) Len() int {
	return len(b.chunks)
}

// LastArrival returns the arrival time of the newest chunk, zero if empty.
func (b *ChunkBuffer) LastArrival() time.Time {
	return b.lastAt
}

// Snapshot returns an ordered view of the chunks accepted so far. Later
// appends never show up in an existing snapshot.
func (b *ChunkBuffer) Snapshot() Snapshot {
	return Snapshot{
		chunks:    b.chunks[:len(b.chunks):len(b.chunks)],
		totalSize: b.totalSize,
	}
}

// Clear discards all chunks. Only called when a new recording attempt starts.
func (b *ChunkBuffer) Clear() {
	b.chunks = nil
	b.totalSize = 0
	b.lastAt = time.Time{}
}

// Snapshot is an immutable ordered view of a ChunkBuffer.
type Snapshot struct {
	chunks    []domain.Chunk
	totalSize int64
}

func (s Snapshot) Len() int { return len(s.chunks) }

func (s Snapshot) Empty() bool { return len(s.chunks) == 0 }

func (s Snapshot) SizeBytes() int64 { return s.totalSize }

// Chunk returns the i-th chunk in arrival order.
func (s Snapshot) Chunk(i int) domain.Chunk { return s.chunks[i] }

// Concat joins all payloads in arrival order.
func (s Snapshot) Concat() []byte {
	out := make([]byte, 0, s.totalSize)
	for _, c := range s.chunks {
		out = append(out, c.Payload...)
	}
	return out
}
