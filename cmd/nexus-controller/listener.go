package main

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// csiListener parses a CSI endpoint of the conventional unix://<path> or
// tcp://<addr> form and removes any stale socket file left behind by a
// prior, uncleanly-terminated process before binding.
func csiListener(endpoint string) (net.Listener, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse csi endpoint %q: %w", endpoint, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale socket %q: %w", path, err)
		}
		return net.Listen("unix", path)
	case "tcp":
		return net.Listen("tcp", u.Host)
	default:
		return nil, fmt.Errorf("unsupported csi endpoint scheme %q (want unix:// or tcp://)", u.Scheme)
	}
}
