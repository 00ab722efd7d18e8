package httpx

import (
	"time"

	"github.com/valyala/fasthttp"
)

// NewFastHTTPClient returns the shared outbound client used for provider calls.
func NewFastHTTPClient(timeout time.Duration) *fasthttp.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &fasthttp.Client{
		ReadTimeout:                   timeout,
		WriteTimeout:                  timeout,
		MaxConnsPerHost:               512,
		MaxIdleConnDuration:           120 * time.Second,
		ReadBufferSize:                32768,
		WriteBufferSize:               32768,
		NoDefaultUserAgentHeader:      true,
		DisableHeaderNamesNormalizing: true,
		DisablePathNormalizing:        true,
	}
}
