package convention

import (
	"net/http"
	"sort"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/hypermedia-lab/labclient/servicedef"
)

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}

// curlCommand renders req as a curl command line that can be pasted into a shell. The API key
// is masked.
func curlCommand(req *http.Request, body []byte) string {
	var b commandBuilder
	b.add("curl", "-k", "-X", req.Method)
	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := req.Header.Get(name)
		if http.CanonicalHeaderKey(name) == http.CanonicalHeaderKey(servicedef.APIKeyHeader) {
			value = "***"
		}
		b.add("-H", name+": "+value)
	}
	if body != nil {
		b.add("--data-binary", string(body))
	} else if req.Body != nil {
		b.add("--data-binary", "@-")
	}
	b.add(req.URL.String())
	return b.String()
}
