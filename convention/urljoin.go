package convention

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// JoinURL appends end to base. base always gets a trailing slash first, so "http://h/api"
// and "http://h/api/" both join with "v1" to "http://h/api/v1". end is converted to text, so
// numeric IDs can be passed directly. An absolute end, or one starting with "/", is resolved
// against base the way a browser would. An empty end returns base unchanged.
func JoinURL(base string, end interface{}) (string, error) {
	if end == nil {
		return "", errors.New("cannot join a nil URL segment")
	}
	s := fmt.Sprint(end)
	if base == "" {
		return s, nil
	}
	if s == "" {
		return base, nil
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	r, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", s, err)
	}
	return b.ResolveReference(r).String(), nil
}
