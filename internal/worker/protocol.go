package worker

import (
	"fmt"

	"github.com/talgya/galaxymorph/internal/galaxy"
)

// Message types on the request/response channels.
const (
	TypeGenerate  = "generate"
	TypeGenerated = "generated"
	TypeError     = "error"
)

// RequestData is the payload of a generate request.
type RequestData struct {
	GalaxyType string `json:"galaxyType"`
	Seed       int64  `json:"seed"`
}

// Request is sent to a worker. ID correlates it with its Response.
type Request struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data RequestData `json:"data"`
}

// ResponseData carries either the generated buffers or an error string.
type ResponseData struct {
	GalaxyType string    `json:"galaxyType"`
	Seed       int64     `json:"seed"`
	Positions  []float32 `json:"positions,omitempty"`
	Colors     []float32 `json:"colors,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Response is sent back by a worker.
type Response struct {
	ID   string       `json:"id"`
	Type string       `json:"type"`
	Data ResponseData `json:"data"`
}

func newRequest(id string, d galaxy.Descriptor) Request {
	return Request{
		ID:   id,
		Type: TypeGenerate,
		Data: RequestData{GalaxyType: d.Type.String(), Seed: d.Seed},
	}
}

func errorResponse(req Request, err error) Response {
	return Response{
		ID:   req.ID,
		Type: TypeError,
		Data: ResponseData{GalaxyType: req.Data.GalaxyType, Seed: req.Data.Seed, Error: err.Error()},
	}
}

// buffer converts a response into a buffer or an ErrWorker-wrapped error.
// Ownership of the slices passes to the caller.
func (r Response) buffer() (*galaxy.Buffer, error) {
	switch r.Type {
	case TypeGenerated:
		p, c := r.Data.Positions, r.Data.Colors
		if len(p) == 0 || len(p) != len(c) || len(p)%3 != 0 {
			return nil, fmt.Errorf("%w: malformed buffer (positions %d, colors %d)", ErrWorker, len(p), len(c))
		}
		return &galaxy.Buffer{Positions: p, Colors: c}, nil
	case TypeError:
		return nil, fmt.Errorf("%w: %s", ErrWorker, r.Data.Error)
	default:
		return nil, fmt.Errorf("%w: unexpected response type %q", ErrWorker, r.Type)
	}
}
