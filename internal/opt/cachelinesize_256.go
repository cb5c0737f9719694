//go:build parkx_cachelinesize_256

package opt

// CacheLineSize_ is forced to 256 bytes via the parkx_cachelinesize_256 build tag.
// Use: go build -tags=parkx_cachelinesize_256
const CacheLineSize_ = 256
