package ccd

import "fmt"

// DecodeAll decodes a complete byte sequence (not a live stream) into the
// responses it contains. Leading garbage is skipped with a single alignment
// pass, the way a session would recover a capture that starts mid-packet.
//
// A sequence that ends in the middle of a packet returns the responses
// decoded so far together with ErrUnexpectedEOP.
func DecodeAll(data []byte) ([]Response, error) {
	if len(data) == 0 {
		return nil, nil
	}
	rest, ok := Align(data)
	if !ok {
		return nil, fmt.Errorf("%w: no package start found", ErrInvalidData)
	}
	var out []Response
	for len(rest) > 0 {
		resp, tail, err := ParseResponse(rest)
		if err != nil {
			if _, inc := Incomplete(err); inc {
				return out, ErrUnexpectedEOP
			}
			return out, err
		}
		out = append(out, resp)
		rest = tail
	}
	return out, nil
}
