package recording

import "strconv"

// DefaultProto is written when a Response carries no protocol version.
const DefaultProto = "HTTP/1.1"

// Header is a single recorded header line. Name and Value are kept exactly as
// given; duplicates and ordering are meaningful.
type Header struct {
	Name  string
	Value string
}

// Response is the decoded form of a recording.
type Response struct {
	Proto      string
	StatusCode int
	// Reason is informational only. Replayed responses get the canonical
	// reason phrase for StatusCode from the HTTP server, not this value.
	Reason  string
	Headers []Header
	Body    []byte
}

// Values returns every value recorded for name, matched case-sensitively.
func (r Response) Values(name string) []string {
	var out []string
	for _, h := range r.Headers {
		if h.Name == name {
			out = append(out, h.Value)
		}
	}
	return out
}

func (r Response) statusLine() string {
	proto := r.Proto
	if proto == "" {
		proto = DefaultProto
	}
	return proto + " " + strconv.Itoa(r.StatusCode) + " " + r.Reason
}
