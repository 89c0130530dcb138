// Package linecount counts newline bytes in a memory-mapped input using a
// vectorized (SIMD-within-a-register) compare-and-popcount kernel, with
// runtime CPU-feature dispatch and chunked parallelism.
//
// Go has no portable way to emit AVX2/SSE4.2 intrinsics without hand
// written Plan9 assembly. The SWAR techniques below are the idiomatic Go
// equivalent: a machine word is XORed against a newline broadcast across
// every lane, and a zero-byte detection mask is popcounted — each set bit
// corresponds to exactly one matching byte, which is the same shape as a
// vector compare-and-movemask-and-popcount pass. The 32-byte lane width is
// dispatched when AVX2 is present and 16-byte when only SSE4.2 is present,
// matching the register widths those instruction sets actually offer; both
// fall back to scalar for anything narrower.
package linecount

import (
	"context"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sync/errgroup"
)

const newline = '\n'

var broadcastNewline = broadcast(newline)

func broadcast(b byte) uint64 {
	w := uint64(b)
	w |= w << 8
	w |= w << 16
	w |= w << 32
	return w
}

// Count returns the number of 0x0A bytes in buf. It is a pure function of
// its input.
func Count(buf []byte) int64 {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX2):
		return countWide32(buf)
	case cpuid.CPU.Supports(cpuid.SSE42):
		return countWide16(buf)
	default:
		return countScalar(buf)
	}
}

func countScalar(buf []byte) int64 {
	var n int64
	for _, c := range buf {
		if c == newline {
			n++
		}
	}
	return n
}

// countWord returns the number of newline bytes in an 8-byte little-endian
// lane using the Hacker's-Delight zero-byte-detection trick: matching
// bytes become zero after the XOR, and exactly one bit per zero byte
// survives the mask, so popcount is the match count.
func countWord(w uint64) int64 {
	x := w ^ broadcastNewline
	mask := (x - 0x0101010101010101) & ^x & 0x8080808080808080
	return int64(popcount64(mask))
}

func popcount64(x uint64) int {
	x = x - ((x >> 1) & 0x5555555555555555)
	x = (x & 0x3333333333333333) + ((x >> 2) & 0x3333333333333333)
	x = (x + (x >> 4)) & 0x0f0f0f0f0f0f0f0f
	return int((x * 0x0101010101010101) >> 56)
}

func loadWord(buf []byte) uint64 {
	_ = buf[7]
	return uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56
}

// countWide16 processes two interleaved 8-byte lanes per iteration (16
// bytes total), the SSE4.2-equivalent width.
func countWide16(buf []byte) int64 {
	var n int64
	pos := 0
	for pos+16 <= len(buf) {
		n += countWord(loadWord(buf[pos:]))
		n += countWord(loadWord(buf[pos+8:]))
		pos += 16
	}
	return n + countScalar(buf[pos:])
}

// countWide32 processes four interleaved 8-byte lanes per iteration (32
// bytes total), the AVX2-equivalent width.
func countWide32(buf []byte) int64 {
	var n int64
	pos := 0
	for pos+32 <= len(buf) {
		n += countWord(loadWord(buf[pos:]))
		n += countWord(loadWord(buf[pos+8:]))
		n += countWord(loadWord(buf[pos+16:]))
		n += countWord(loadWord(buf[pos+24:]))
		pos += 32
	}
	return n + countScalar(buf[pos:])
}

// CountParallel splits buf into disjoint contiguous chunks (one per
// logical CPU), counts each chunk independently with Count, and sums the
// results. Splitting on arbitrary byte boundaries is safe because a
// newline is a single byte and the count is additive.
func CountParallel(ctx context.Context, buf []byte) (int64, error) {
	numWorkers := runtime.NumCPU()
	if numWorkers < 1 {
		numWorkers = 1
	}
	if len(buf) == 0 || numWorkers == 1 {
		return Count(buf), nil
	}

	chunkSize := (len(buf) + numWorkers - 1) / numWorkers
	totals := make([]int64, numWorkers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < numWorkers; i++ {
		i := i
		start := i * chunkSize
		if start >= len(buf) {
			break
		}
		end := start + chunkSize
		if end > len(buf) {
			end = len(buf)
		}
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			totals[i] = Count(buf[start:end])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var sum int64
	for _, t := range totals {
		sum += t
	}
	return sum, nil
}
