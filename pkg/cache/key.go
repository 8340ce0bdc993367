package cache

import (
	"strings"
)

// keyPrefix namespaces all keys written by this package.
const keyPrefix = "mpapi"

// Key identifies a cached RIA response.
type Key struct {
	// Endpoint is the request path below the application root,
	// e.g. "module/Object/definition".
	Endpoint string

	// Instance distinguishes MuseumPlus installations sharing one Redis,
	// usually the base URL host.
	Instance string

	// Language is the Accept-Language the response was fetched with.
	// Definitions carry localized labels.
	Language string
}

// String generates a deterministic cache key string.
// Format: mpapi[:instance]:endpoint[:lang=xx]
//
// Example:
//
//	mpapi:museum.example.org:module/Object/definition:lang=de
func (k Key) String() string {
	parts := []string{keyPrefix}
	if k.Instance != "" {
		parts = append(parts, k.Instance)
	}
	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}
	if k.Language != "" {
		parts = append(parts, "lang="+k.Language)
	}
	return strings.Join(parts, ":")
}
