package core

// ErrorKind categorizes a failed Response for metrics and user messaging.
type ErrorKind string

const (
	// ErrorKindNone marks a successful response.
	ErrorKindNone ErrorKind = ""
	// ErrorKindValidation marks rejected input; reported verbatim, never retried.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindRateLimit marks a rate-limited request carrying a wait estimate.
	ErrorKindRateLimit ErrorKind = "rate_limit"
	// ErrorKindBackend marks a language-backend failure.
	ErrorKindBackend ErrorKind = "backend"
	// ErrorKindSearch marks an external search failure.
	ErrorKindSearch ErrorKind = "search"
	// ErrorKindInternal marks an unexpected internal failure.
	ErrorKindInternal ErrorKind = "internal"
)

// Response is the result of an agent processing a message.
//
// Content must always be set; when Error is true it carries a short,
// user-safe message instead of generated output. A response with
// NeedsResearch true should carry a SearchQuery; the orchestrator derives
// one from the original message if an agent omits it.
type Response struct {
	Content         string
	Error           bool
	ErrorKind       ErrorKind
	NeedsResearch   bool
	SearchQuery     string
	SuggestedTopics []string
	Metadata        map[string]any
}

// ErrorResponse builds a failed Response with a user-safe message.
func ErrorResponse(kind ErrorKind, content string) Response {
	return Response{Content: content, Error: true, ErrorKind: kind}
}

// WithMeta returns a copy of the response with the key/value pair added to
// its metadata map, allocating the map lazily.
func (r Response) WithMeta(key string, value any) Response {
	md := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		md[k] = v
	}
	md[key] = value
	r.Metadata = md
	return r
}
