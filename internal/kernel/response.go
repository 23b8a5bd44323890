package kernel

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Response is what a HandlerFunc returns on success. A nil Body writes no
// content.
type Response struct {
	Status int
	Header http.Header
	Body   any
}

// JSON returns a response that encodes body as JSON.
func JSON(status int, body any) Response {
	return Response{Status: status, Body: body}
}

// NoContent returns an empty 204 response.
func NoContent() Response {
	return Response{Status: http.StatusNoContent}
}

type errorBody struct {
	Reason string `json:"reason"`
	Code   int    `json:"code"`
}

// envelope is the body of every failed request.
type envelope struct {
	Error errorBody `json:"error"`
	Code  int       `json:"code"`
}

func newEnvelope(status int, reason string) envelope {
	return envelope{Error: errorBody{Reason: reason, Code: status}, Code: status}
}

// write encodes resp to w. Encoding happens before the header is sent so that
// a marshal failure can still become a 500.
func write(w http.ResponseWriter, resp Response) error {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if resp.Body == nil || status == http.StatusNoContent {
		w.WriteHeader(status)
		return nil
	}

	data, err := json.Marshal(resp.Body)
	if err != nil {
		return &encodeError{err: err}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(data, '\n'))
	return err
}

// encodeError is returned by write when the body could not be marshaled.
// Nothing has been written to the connection at that point.
type encodeError struct {
	err error
}

func (e *encodeError) Error() string { return "encode response: " + e.err.Error() }

func (e *encodeError) Unwrap() error { return e.err }

// Decode reads a JSON request body into v. Malformed bodies and unknown
// fields are reported as 400.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return NewError(http.StatusBadRequest, "request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return Errorf(http.StatusBadRequest, "decoding request body: %w", err)
	}
	return nil
}
