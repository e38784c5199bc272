package cache

import "net/http"

// Policy controls how a cached Envelope is used against a live request.
type Policy int

const (
	// Online revalidates: a cached entry is sent with conditional headers
	// and a 304 response reuses the cached body; a 200 replaces it.
	Online Policy = iota
	// Offline never hits the network: a cache hit is used as-is, and a
	// miss is a hard error (the caller has no connectivity to fall back on).
	Offline
	// Override ignores any cached entry and always performs a fresh,
	// unconditional request, overwriting the cache with the result.
	Override
)

// Apply decorates req with conditional-request headers appropriate to
// policy and the cached envelope, if any. It reports whether a network
// request should be made at all (false under Offline, hit or miss; the
// caller serves a hit from env and fails on a miss).
func Apply(req *http.Request, env *Envelope, ok bool, policy Policy) (shouldFetch bool) {
	if policy == Offline {
		return false
	}

	if policy == Override || !ok {
		return true
	}

	if env.ETag != "" {
		req.Header.Set("If-None-Match", env.ETag)
	}

	if env.LastModified != "" {
		req.Header.Set("If-Modified-Since", env.LastModified)
	}

	return true
}

// Revalidated reports whether an HTTP response confirms the cached entry is
// still fresh (304 Not Modified).
func Revalidated(resp *http.Response) bool {
	return resp.StatusCode == http.StatusNotModified
}
