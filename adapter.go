package deskweb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/dormoron/deskweb/internal/errs"
)

const defaultMultipartMemory = 32 << 20

// Arguments maps parameter names to bound values. A fresh map is built for
// every request and never shared.
type Arguments map[string]any

// Request is one incoming request as seen by the adapter: the transport's
// request plus the captures produced by route matching.
type Request struct {
	*http.Request
	Captures map[string]string
}

// RequestHandler adapts a HandlerDescriptor to incoming requests. It holds no
// per-request state, so one instance serves any number of concurrent requests.
type RequestHandler struct {
	desc            *HandlerDescriptor
	log             *slog.Logger
	multipartMemory int64
}

// NewRequestHandler wraps desc. A nil logger falls back to slog.Default.
func NewRequestHandler(desc *HandlerDescriptor, logger *slog.Logger) *RequestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestHandler{desc: desc, log: logger, multipartMemory: defaultMultipartMemory}
}

// Descriptor returns the wrapped descriptor.
func (h *RequestHandler) Descriptor() *HandlerDescriptor {
	return h.desc
}

// Handle binds req, invokes the handler and converts its outcome into a
// Response. Binding failures and APIErrors come back as responses; any other
// handler error is returned untouched for the transport to deal with.
func (h *RequestHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	args, err := h.Bind(req)
	if err != nil {
		var cie *ClientInputError
		if errors.As(err, &cie) {
			return cie.Response(), nil
		}
		return nil, err
	}

	sig := h.desc.Signature
	in := sig.newInput()
	if err = sig.decode(args, in); err != nil {
		return newClientInputError(http.StatusBadRequest, errs.ErrInvalidArgument(err)).Response(), nil
	}

	// 连接已断开时放弃请求，处理函数尚未产生任何副作用。
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	out, err := h.desc.invoke(ctx, in)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.Response()
		}
		return nil, err
	}
	return Render(out)
}

// Bind builds the argument mapping for req:
//
//  1. write requests to handlers with by-name parameters read the body
//     (JSON object, urlencoded form or multipart form);
//  2. GET and HEAD requests to handlers with a variadic sink read the query string,
//     the last occurrence of a key winning;
//  3. without a sink, body/query keys are filtered to the declared names;
//  4. path captures are merged in and override same-named values;
//  5. the request object is injected when declared;
//  6. every required named parameter must be present.
//
// Failures are *ClientInputError values.
func (h *RequestHandler) Bind(req *Request) (Arguments, error) {
	sig := h.desc.Signature

	var args Arguments
	if sig.needsNamedBinding() && isWriteMethod(req.Method) {
		var err error
		if args, err = h.readBody(req); err != nil {
			return nil, err
		}
	} else if (req.Method == http.MethodGet || req.Method == http.MethodHead) && sig.AcceptsVariadicNamed() {
		args = parseQuery(req.URL.RawQuery)
	}

	if args != nil && !sig.AcceptsVariadicNamed() && len(sig.named) > 0 {
		filtered := make(Arguments, len(sig.named))
		for _, name := range sig.named {
			if v, ok := args[name]; ok {
				filtered[name] = v
			}
		}
		args = filtered
	}
	if args == nil {
		args = make(Arguments, len(req.Captures)+1)
	}

	for k, v := range req.Captures {
		if _, ok := args[k]; ok {
			h.log.Warn("path capture overrides request argument",
				slog.String("param", k),
				slog.String("method", h.desc.Method),
				slog.String("route", h.desc.Path))
		}
		args[k] = v
	}

	if sig.RequiresRequestObject() {
		args[requestParam] = req.Request
	}

	for _, name := range sig.required {
		if _, ok := args[name]; !ok {
			return nil, newClientInputError(http.StatusBadRequest, errs.ErrMissingArgument(name))
		}
	}
	return args, nil
}

func (h *RequestHandler) readBody(req *Request) (Arguments, error) {
	contentType := req.Header.Get("Content-Type")
	if contentType == "" {
		return nil, newClientInputError(http.StatusBadRequest, errs.ErrMissingContentType())
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, newClientInputError(http.StatusUnsupportedMediaType, errs.ErrUnsupportedType(contentType))
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return readJSONObject(req.Body)
	case mediaType == "application/x-www-form-urlencoded":
		if err = req.ParseForm(); err != nil {
			return nil, bodyError(err)
		}
		return lastValues(req.PostForm), nil
	case mediaType == "multipart/form-data":
		if err = req.ParseMultipartForm(h.multipartMemory); err != nil {
			return nil, bodyError(err)
		}
		args := lastValues(req.MultipartForm.Value)
		for name, files := range req.MultipartForm.File {
			if len(files) > 0 {
				args[name] = files[len(files)-1]
			}
		}
		return args, nil
	default:
		return nil, newClientInputError(http.StatusUnsupportedMediaType, errs.ErrUnsupportedType(mediaType))
	}
}

func readJSONObject(body io.Reader) (Arguments, error) {
	if body == nil {
		return nil, newClientInputError(http.StatusBadRequest, errs.ErrMalformedBody(io.EOF))
	}
	decoder := json.NewDecoder(body)
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return nil, bodyError(err)
	}
	// 请求体只能包含一个 JSON 值
	if err := decoder.Decode(new(json.RawMessage)); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after JSON object")
		}
		return nil, bodyError(err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, newClientInputError(http.StatusBadRequest, errs.ErrBodyNotObject())
	}
	return Arguments(normalizeNumbers(obj).(map[string]any)), nil
}

// normalizeNumbers 把 json.Number 换成 int64，放不下时换成 float64，
// 可变命名参数收到的就是普通的 Go 数值
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	default:
		return v
	}
}

func bodyError(err error) *ClientInputError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return newClientInputError(http.StatusRequestEntityTooLarge, errs.ErrBodyTooLarge())
	}
	return newClientInputError(http.StatusBadRequest, errs.ErrMalformedBody(err))
}

// parseQuery keeps the last value of every key. Malformed pairs are skipped.
func parseQuery(raw string) Arguments {
	values, _ := url.ParseQuery(raw)
	return lastValues(values)
}

func lastValues(values map[string][]string) Arguments {
	args := make(Arguments, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			args[k] = vs[len(vs)-1]
		}
	}
	return args
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}
