// Package resource implements the Controller for global limits.
//
// The Controller provides centralized management of three resource types:
//
//   - Memory: Track and limit foreign-heap memory (non-blocking, fail-fast)
//   - Workers: Bound the goroutines an engine may use inside one call
//   - IO: Rate-limit reference bundle downloads
//
// # Memory Management
//
// TryAcquireMemory never blocks. When the limit would be exceeded it returns
// false and the foreign heap reports an allocation failure to the caller:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1GB limit
//	})
//
//	if !rc.TryAcquireMemory(1024 * 1024) {
//	    // allocation failure
//	}
//	defer rc.ReleaseMemory(1024 * 1024)
//
// # IO Rate Limiting
//
//	reader := resource.NewRateLimitedReader(ctx, blobReader, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
