package transport

import (
	"encoding/json"
	"errors"

	"ForkGo/sipmsg"
)

// JSONCodec is the default Codec: it wraps a Request or Response in a
// tagged JSON envelope. A real deployment would swap this for a wire
// codec that speaks RFC 3261's text encoding; since that parser is
// out of scope here, JSONCodec keeps the UDP worker pool and DSCP
// marking exercised against something real without pretending to
// implement one.
type JSONCodec struct{}

type envelope struct {
	Kind     string           `json:"kind"`
	Request  *sipmsg.Request  `json:"request,omitempty"`
	Response *sipmsg.Response `json:"response,omitempty"`
}

func (JSONCodec) EncodeRequest(req *sipmsg.Request) []byte {
	data, _ := json.Marshal(envelope{Kind: "request", Request: req})
	return data
}

func (JSONCodec) EncodeResponse(resp *sipmsg.Response) []byte {
	data, _ := json.Marshal(envelope{Kind: "response", Response: resp})
	return data
}

func (JSONCodec) Decode(data []byte) (*sipmsg.Request, *sipmsg.Response, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, err
	}
	switch env.Kind {
	case "request":
		if env.Request == nil {
			return nil, nil, errors.New("request envelope missing body")
		}
		return env.Request, nil, nil
	case "response":
		if env.Response == nil {
			return nil, nil, errors.New("response envelope missing body")
		}
		return nil, env.Response, nil
	default:
		return nil, nil, errors.New("unknown envelope kind: " + env.Kind)
	}
}
