package proxy

import (
	"net/http"

	"github.com/tapehub/tapehub/internal/recording"
	"github.com/tapehub/tapehub/internal/tape"
)

// Outcome is the result of dispatching one request. The set of variants is
// closed: Playback, NotImplemented and Recorded.
type Outcome interface {
	// Name is the value used for the outcome log field and metric label.
	Name() string
	// Status is the HTTP status code the client will receive.
	Status() int

	outcome()
}

// Playback carries a recording read back from the tape store.
type Playback struct {
	Key      tape.Key
	Response recording.Response
}

// NotImplemented is returned for a miss while replay-only mode is on.
type NotImplemented struct {
	Key    tape.Key
	Accept []string
}

// Recorded carries an upstream response that has just been written to tape.
type Recorded struct {
	Key      tape.Key
	Response recording.Response
}

func (Playback) Name() string { return "playback" }
func (NotImplemented) Name() string { return "not_implemented" }
func (Recorded) Name() string { return "record" }

func (p Playback) Status() int { return p.Response.StatusCode }
func (NotImplemented) Status() int { return http.StatusNotImplemented }
func (r Recorded) Status() int { return r.Response.StatusCode }

func (Playback) outcome() {}
func (NotImplemented) outcome() {}
func (Recorded) outcome() {}
