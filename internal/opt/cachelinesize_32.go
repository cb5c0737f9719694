//go:build parkx_cachelinesize_32

package opt

// CacheLineSize_ is forced to 32 bytes via the parkx_cachelinesize_32 build tag.
// Use: go build -tags=parkx_cachelinesize_32
const CacheLineSize_ = 32
