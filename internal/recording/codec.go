package recording

import (
	"bytes"
	"strconv"
	"strings"
)

var (
	crlf      = []byte("\r\n")
	delimiter = []byte("\r\n\r\n")
)

// Encode serializes resp into the tape format. Headers are written in slice
// order without any normalization.
func Encode(resp Response) []byte {
	status := resp.statusLine()

	size := len(status) + len(delimiter) + len(resp.Body)
	for _, h := range resp.Headers {
		size += len(h.Name) + len(h.Value) + 3
	}

	var buf bytes.Buffer
	buf.Grow(size)
	buf.WriteString(status)
	buf.Write(crlf)
	for _, h := range resp.Headers {
		buf.WriteString(h.Name)
		buf.WriteByte(':')
		buf.WriteString(h.Value)
		buf.Write(crlf)
	}
	buf.Write(crlf)
	buf.Write(resp.Body)
	return buf.Bytes()
}

// Decode parses a recording produced by Encode (or written by hand). The head
// ends at the first CRLFCRLF; everything after it is returned as the body
// without modification. Header values keep any whitespace following the colon.
func Decode(data []byte) (Response, error) {
	idx := bytes.Index(data, delimiter)
	if idx < 0 {
		return Response{}, malformed("header delimiter not found")
	}

	lines := strings.Split(string(data[:idx]), "\r\n")
	resp, err := parseStatusLine(lines[0])
	if err != nil {
		return Response{}, err
	}

	if len(lines) > 1 {
		resp.Headers = make([]Header, 0, len(lines)-1)
	}
	for i, line := range lines[1:] {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return Response{}, malformed("header line %d has no colon", i+1)
		}
		if colon == 0 {
			return Response{}, malformed("header line %d has an empty name", i+1)
		}
		resp.Headers = append(resp.Headers, Header{Name: line[:colon], Value: line[colon+1:]})
	}

	body := make([]byte, len(data)-idx-len(delimiter))
	copy(body, data[idx+len(delimiter):])
	resp.Body = body
	return resp, nil
}

// parseStatusLine 解析 "<version> <code> <reason>"，reason 可以为空。
func parseStatusLine(line string) (Response, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || parts[0] == "" {
		return Response{}, malformed("invalid status line %q", line)
	}
	code := parts[1]
	if len(code) != 3 || !isDigits(code) {
		return Response{}, malformed("invalid status code %q", code)
	}
	status, err := strconv.Atoi(code)
	if err != nil || status < 100 {
		return Response{}, malformed("invalid status code %q", code)
	}

	resp := Response{Proto: parts[0], StatusCode: status}
	if len(parts) == 3 {
		resp.Reason = parts[2]
	}
	return resp, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
