//go:build parkx_cachelinesize_64

package opt

// CacheLineSize_ is forced to 64 bytes via the parkx_cachelinesize_64 build tag.
// Use: go build -tags=parkx_cachelinesize_64
const CacheLineSize_ = 64
