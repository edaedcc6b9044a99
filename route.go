package deskweb

import (
	"context"
	"net/http"
	"reflect"

	"github.com/dormoron/deskweb/internal/errs"
)

// Endpoint is a namespace member carrying method and path metadata that the
// registrar can turn into a HandlerDescriptor.
type Endpoint interface {
	Method() string
	Path() string
	Describe() (*HandlerDescriptor, error)
}

var _ Endpoint = &Route[NoArgs]{}

// Route attaches a method and a path to a handler. The handler stays directly
// callable through Call or the Fn field.
type Route[In any] struct {
	method string
	path   string
	Fn     Handler[In]
}

// Annotate marks fn as serving method and path.
func Annotate[In any](method, path string, fn Handler[In]) *Route[In] {
	return &Route[In]{method: method, path: path, Fn: fn}
}

// GET marks fn as serving GET requests to path.
func GET[In any](path string, fn Handler[In]) *Route[In] {
	return Annotate(http.MethodGet, path, fn)
}

// POST marks fn as serving POST requests to path.
func POST[In any](path string, fn Handler[In]) *Route[In] {
	return Annotate(http.MethodPost, path, fn)
}

// PUT marks fn as serving PUT requests to path.
func PUT[In any](path string, fn Handler[In]) *Route[In] {
	return Annotate(http.MethodPut, path, fn)
}

// PATCH marks fn as serving PATCH requests to path.
func PATCH[In any](path string, fn Handler[In]) *Route[In] {
	return Annotate(http.MethodPatch, path, fn)
}

// DELETE marks fn as serving DELETE requests to path.
func DELETE[In any](path string, fn Handler[In]) *Route[In] {
	return Annotate(http.MethodDelete, path, fn)
}

func (r *Route[In]) Method() string { return r.method }

func (r *Route[In]) Path() string { return r.path }

// Call invokes the handler exactly as calling Fn would.
func (r *Route[In]) Call(ctx context.Context, in In) (any, error) {
	return r.Fn(ctx, in)
}

// Describe inspects In and builds the route's descriptor.
func (r *Route[In]) Describe() (*HandlerDescriptor, error) {
	if r.method == "" || r.path == "" {
		return nil, &ConfigurationError{Method: r.method, Path: r.path, Err: errs.ErrNotAnnotated()}
	}
	if r.Fn == nil {
		return nil, &ConfigurationError{Method: r.method, Path: r.path, Err: errs.ErrNilHandler()}
	}
	sig, err := Inspect(reflect.TypeOf((*In)(nil)).Elem())
	if err != nil {
		return nil, &ConfigurationError{Method: r.method, Path: r.path, Err: err}
	}
	fn := r.Fn
	return &HandlerDescriptor{
		Method:    r.method,
		Path:      r.path,
		Signature: sig,
		invoke: func(ctx context.Context, in reflect.Value) (any, error) {
			return fn(ctx, *in.Interface().(*In))
		},
	}, nil
}

// HandlerDescriptor is the immutable registration-time record of one handler:
// where it is served and what its parameters look like.
type HandlerDescriptor struct {
	Method    string
	Path      string
	Signature *Signature

	invoke func(ctx context.Context, in reflect.Value) (any, error)
}

// RequiresRequestObject mirrors Signature.RequiresRequestObject.
func (d *HandlerDescriptor) RequiresRequestObject() bool {
	return d.Signature.RequiresRequestObject()
}

// AcceptsVariadicNamed mirrors Signature.AcceptsVariadicNamed.
func (d *HandlerDescriptor) AcceptsVariadicNamed() bool {
	return d.Signature.AcceptsVariadicNamed()
}

// NamedParams mirrors Signature.NamedParams.
func (d *HandlerDescriptor) NamedParams() []string {
	return d.Signature.NamedParams()
}

// RequiredNamedParams mirrors Signature.RequiredNamedParams.
func (d *HandlerDescriptor) RequiredNamedParams() []string {
	return d.Signature.RequiredNamedParams()
}
