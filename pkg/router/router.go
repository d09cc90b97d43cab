// Package router decides which resolution strategy serves a request.
package router

import (
	"github.com/Sternrassler/swcache-proxy/pkg/request"
)

// Class is the resolution preference of a request.
type Class string

const (
	// PreferCache serves from cache and only fetches on a miss.
	PreferCache Class = "prefer_cache"

	// PreferNetwork fetches first and only falls back to cache on failure.
	PreferNetwork Class = "prefer_network"
)

// cacheFirstDestinations are the static asset kinds served cache-first.
var cacheFirstDestinations = map[request.Destination]bool{
	request.DestinationStyle:  true,
	request.DestinationScript: true,
	request.DestinationImage:  true,
	request.DestinationFont:   true,
}

// Classify returns PreferCache for style, script, image and font requests
// and for top-level navigations, PreferNetwork for everything else.
func Classify(req *request.Request) Class {
	if cacheFirstDestinations[req.Destination] || req.Navigate {
		return PreferCache
	}
	return PreferNetwork
}
