package jrtos

// These constants describe host-cache-line geometry used to pad the
// scheduler's hot fields (priomask, sleepmask, wakeupmask) apart so that a
// task-local write and an interrupt-goroutine write never false-share.
const (
	// sizeOfCacheLine is the size of a CPU cache line.
	// 64 bytes is standard for x86-64.
	// 128 bytes is standard for Apple Silicon (M1/M2/M3) and other ARM64.
	// We use 128 to satisfy the largest common alignment requirement.
	sizeOfCacheLine = 128

	// sizeOfAtomicUint32 is the size of an atomic.Uint32 variable.
	sizeOfAtomicUint32 = 4
)
