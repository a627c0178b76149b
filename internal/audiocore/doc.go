// Package audiocore provides the low-level audio I/O and DSP pipeline layer
// that backs the engine's voice pool. It implements a modular architecture
// for device capture, buffer management, and ordered per-voice processing.
//
// # Architecture Overview
//
// The audiocore package consists of several key components:
//
//   - Audio Sources: capture or stream decoded audio (sound device, asset stream)
//   - Processor Chains: ordered per-voice DSP transforms (filters, spatializer, reverb send)
//   - Buffer Management: tiered memory management with buffer pooling
//   - Resource Tracking: monitors resource usage and detects leaks
//
// # Concurrency and Thread Safety
//
// All public types and methods in audiocore are designed to be thread-safe unless
// explicitly documented otherwise. The following guarantees are provided:
//
// ## Thread-Safe Components
//
//   - AudioManager: all methods can be called concurrently from multiple goroutines
//   - ProcessorChain: safe for concurrent Process calls and processor list mutation
//   - BufferPool: concurrent Get/Put operations are safe
//   - ResourceTracker: thread-safe resource tracking and leak detection
//
// ## Concurrency Patterns
//
// The package uses several concurrency patterns:
//
//   - Goroutine-per-source: each AudioSource is drained by its own processing loop
//   - Channel-based Communication: audio data flows through channels
//   - Mutex Protection: shared state is protected with sync.RWMutex
//   - Atomic Operations: counters and flags use atomic types
//
// ## Best Practices
//
// When using audiocore components:
//
//  1. Always close resources (sources, pipelines) when done
//  2. Use context.Context for cancellation and timeouts
//  3. Monitor metrics for performance and health
//  4. Handle errors appropriately - all errors use the enhanced error system
//
// # Buffer Lifecycle
//
// Buffers obtained from BufferPool follow this lifecycle:
//
//  1. Get: obtain buffer from pool (or allocate if pool is empty)
//  2. Use: fill buffer with audio data
//  3. Acquire/Release: reference-count ownership across goroutines
//
// Example:
//
//	buffer := pool.Get(size)
//	defer buffer.Release() // always release when done
//
//	// use buffer.Data()...
//
// # Error Handling
//
// All errors in audiocore use the enhanced error system with proper
// component and category tagging. Always check errors and use the
// error context for debugging:
//
//	if err != nil {
//	    // error will have component, category, and context
//	    logger.Error("operation failed", "error", err)
//	}
package audiocore
