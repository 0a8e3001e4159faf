// Package recording implements the on-disk tape format: a raw HTTP/1.x
// response head (status line plus one "name:value" line per header), a blank
// CRLF line, and the response body appended byte for byte. Tapes written here
// are meant to be inspected and edited by hand, so the format carries no
// framing beyond the first CRLFCRLF and never re-encodes the body.
package recording
