package deskweb

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/dormoron/deskweb/internal/errs"
)

// Namespace is a collection of members that may carry route metadata, the
// unit AddRoutes scans. Members that are not Endpoints are ignored.
type Namespace interface {
	Members() []any
}

// Members is the simplest Namespace: a literal list of members.
type Members []any

func (m Members) Members() []any { return m }

// Loader resolves a module name to its Namespace.
type Loader interface {
	Load(module string) (Namespace, error)
}

// Modules is a Loader backed by a fixed map, which is how a binary exposes its
// compiled-in handler packages by name.
type Modules map[string]Namespace

func (m Modules) Load(module string) (Namespace, error) {
	ns, ok := m[module]
	if !ok {
		return nil, errs.ErrModuleNotFound(module)
	}
	return ns, nil
}

// passthroughArgs declares nothing, so the adapter never reads the body and
// the delegated handler sees the request untouched.
type passthroughArgs = NoArgs

// PassthroughRoute builds an Endpoint whose handler always answers with a
// passthrough response delegating to h.
func PassthroughRoute(method, path string, h http.Handler) *Route[passthroughArgs] {
	resp := Passthrough(h)
	return Annotate(method, path, func(ctx context.Context, _ passthroughArgs) (any, error) {
		return resp, nil
	})
}

// AddRoutes scans ns and registers every member that is an Endpoint. A member
// whose descriptor cannot be built is skipped; the errors of all skipped
// members are returned joined together, each a *ConfigurationError.
func (s *HTTPServer) AddRoutes(ns Namespace) error {
	var errList []error
	for _, member := range ns.Members() {
		ep, ok := member.(Endpoint)
		if !ok {
			continue
		}
		if err := s.Register(ep); err != nil {
			s.log.Error("route registration failed", "error", err)
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// AddModule resolves module through the server's loader and registers its
// namespace.
func (s *HTTPServer) AddModule(module string) error {
	if s.loader == nil {
		return errs.ErrModuleNotFound(module)
	}
	ns, err := s.loader.Load(module)
	if err != nil {
		return err
	}
	return s.AddRoutes(ns)
}

// Register adds a single endpoint to the route table.
func (s *HTTPServer) Register(ep Endpoint) error {
	desc, err := ep.Describe()
	if err != nil {
		return err
	}
	if err = s.routes.Register(desc); err != nil {
		return err
	}
	s.log.Debug("route registered",
		"method", desc.Method, "route", desc.Path,
		"named", desc.NamedParams(), "sink", desc.AcceptsVariadicNamed())
	return nil
}

// Passthrough registers h to serve method and path directly.
func (s *HTTPServer) Passthrough(method, path string, h http.Handler) error {
	return s.Register(PassthroughRoute(method, path, h))
}

// Routes lists the registered routes as "METHOD path", sorted.
func (s *HTTPServer) Routes() []string {
	descs := s.routes.Routes()
	res := make([]string, 0, len(descs))
	for _, d := range descs {
		res = append(res, d.Method+" "+d.Path)
	}
	sort.Strings(res)
	return res
}
