package common

import "time"

const (
	DefaultCacheTTL = 1 * time.Hour

	RequestIDHeader = "X-Request-Id"
	SearchIDHeader  = "X-Search-Id"
	CacheHeader     = "X-Cache"
)
