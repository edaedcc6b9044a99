package deskweb

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

const redirectPrefix = "redirect:"

// Response is what dispatch hands back to the transport: a status, headers and
// a body. A passthrough response instead delegates writing to an http.Handler.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	handler http.Handler
}

// Passthrough returns a response that lets h write directly to the client.
// Static mounts, metrics and websocket upgrades are served this way.
func Passthrough(h http.Handler) *Response {
	return &Response{handler: h}
}

// IsPassthrough reports whether the response delegates to an http.Handler.
func (r *Response) IsPassthrough() bool {
	return r.handler != nil
}

// Render turns a handler's return value into a Response:
//   - *Response is used as is
//   - []byte becomes application/octet-stream
//   - string becomes text/html, or a 302 when it starts with "redirect:"
//   - nil becomes an empty 200
//   - anything else is encoded as JSON
func Render(v any) (*Response, error) {
	switch val := v.(type) {
	case *Response:
		if val == nil {
			return &Response{Status: http.StatusOK, Header: http.Header{}}, nil
		}
		return val, nil
	case nil:
		return &Response{Status: http.StatusOK, Header: http.Header{}}, nil
	case []byte:
		return newBodyResponse(http.StatusOK, "application/octet-stream", val), nil
	case string:
		if loc, ok := strings.CutPrefix(val, redirectPrefix); ok {
			resp := &Response{Status: http.StatusFound, Header: http.Header{}}
			resp.Header.Set("Location", loc)
			return resp, nil
		}
		return newBodyResponse(http.StatusOK, "text/html; charset=utf-8", []byte(val)), nil
	default:
		return JSON(http.StatusOK, val)
	}
}

// JSON encodes v as the body of a response with the given status.
func JSON(status int, v any) (*Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return newBodyResponse(status, "application/json", data), nil
}

func newBodyResponse(status int, contentType string, body []byte) *Response {
	resp := &Response{Status: status, Header: http.Header{}, Body: body}
	resp.Header.Set("Content-Type", contentType)
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return resp
}

func textResponse(status int, text string) *Response {
	return newBodyResponse(status, "text/plain; charset=utf-8", []byte(text))
}

// Write sends the response to w. req is only used by passthrough responses.
func (r *Response) Write(w http.ResponseWriter, req *http.Request) error {
	if r.handler != nil {
		r.handler.ServeHTTP(w, req)
		return nil
	}
	header := w.Header()
	for k, vs := range r.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(r.Body) == 0 || req.Method == http.MethodHead {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
