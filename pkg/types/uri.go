package types

import "net/url"

// uriParam extracts a query parameter from a replica/nexus URI, tolerating
// URIs that fail to parse by returning "".
func uriParam(rawURI, key string) string {
	u, err := url.Parse(rawURI)
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}
