package cache

import "time"

// Cache holds slow-changing chain metadata (contract names, decimals) so that
// repeated signing flows do not re-read it on every request.
type Cache interface {
	// Get returns (value, true) on a hit and (nil, false) otherwise.
	Get(key string) (interface{}, bool)

	// Set stores value for ttl. Writes are applied asynchronously and may be
	// dropped under contention; a false return means the write was rejected.
	Set(key string, value interface{}, ttl time.Duration) bool

	Delete(key string)
	Clear()
	Close()
}
