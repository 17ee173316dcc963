package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// JoinPath safely joins URL paths, handling trailing and leading slashes correctly
func JoinPath(base string, paths ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	allPaths := append([]string{u.Path}, paths...)
	u.Path = path.Join(allPaths...)

	return u.String(), nil
}

// CollapseSlashes collapses duplicate path separators into one, leaving the
// scheme separator ("https://") intact. Config variants differ in trailing
// slash handling, so URLs assembled from them can contain "//" runs.
func CollapseSlashes(rawURL string) string {
	scheme := ""
	rest := rawURL
	if idx := strings.Index(rawURL, "://"); idx != -1 {
		scheme = rawURL[:idx+3]
		rest = rawURL[idx+3:]
	}
	for strings.Contains(rest, "//") {
		rest = strings.ReplaceAll(rest, "//", "/")
	}
	return scheme + rest
}
