package deskweb

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/dormoron/deskweb/internal/errs"
	"github.com/mitchellh/mapstructure"
)

const (
	paramTag     = "param"
	defaultTag   = "default"
	requestParam = "request"
)

var httpRequestType = reflect.TypeOf((*http.Request)(nil))

// ParamKind classifies one declared handler parameter.
type ParamKind uint8

const (
	// ParamPositional is request data that can only be supplied by path captures
	// (or handed through a variadic sink).
	ParamPositional ParamKind = iota
	// ParamNamed is a parameter supplied by name from the body, query or path.
	ParamNamed
	// ParamVariadicNamed absorbs every by-name argument no other parameter claims.
	ParamVariadicNamed
	// ParamRequest receives the *http.Request itself.
	ParamRequest
)

func (k ParamKind) String() string {
	switch k {
	case ParamPositional:
		return "positional"
	case ParamNamed:
		return "named"
	case ParamVariadicNamed:
		return "variadic-named"
	case ParamRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Param is one entry of a handler's declared parameter list.
type Param struct {
	Name       string
	Kind       ParamKind
	Default    string
	HasDefault bool

	field int
}

// Signature is the registration-time description of a handler's parameter
// list. It is built once by Inspect, never mutated afterwards and therefore
// safe to share between concurrent requests.
//
// The parameter list is declared as a struct; each exported field carries a
// `param` tag and the field order is the parameter order:
//
//	type moveArgs struct {
//		Preset  string            `param:"preset,positional"`
//		Request *http.Request     `param:"request"`
//		Height  int               `param:"height"`
//		Speed   int               `param:"speed" default:"1"`
//		Extra   map[string]any    `param:",remain"`
//	}
type Signature struct {
	typ      reflect.Type
	params   []Param
	named    []string
	required []string
	sink     int
	request  int
}

// Inspect validates the parameter struct typ and returns its Signature.
// Shape problems are reported as errors and must keep the handler from
// being registered.
func Inspect(typ reflect.Type) (*Signature, error) {
	if typ == nil || typ.Kind() != reflect.Struct {
		name := "<nil>"
		if typ != nil {
			name = typ.String()
		}
		return nil, errs.ErrNotStruct(name)
	}

	sig := &Signature{typ: typ, sink: -1, request: -1}
	seen := make(map[string]struct{}, typ.NumField())

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		tag, ok := field.Tag.Lookup(paramTag)
		if !ok {
			return nil, errs.ErrUntaggedField(field.Name)
		}
		p, err := parseParam(field, tag)
		if err != nil {
			return nil, err
		}
		p.field = i

		// After the request object only by-name parameters may follow.
		if sig.request >= 0 && (p.Kind == ParamPositional || p.Kind == ParamRequest) {
			return nil, errs.ErrRequestPosition(field.Name)
		}

		switch p.Kind {
		case ParamVariadicNamed:
			if sig.sink >= 0 {
				return nil, errs.ErrDuplicateSink(field.Name)
			}
			sig.sink = i
		case ParamRequest:
			sig.request = i
		case ParamNamed:
			sig.named = append(sig.named, p.Name)
			if !p.HasDefault {
				sig.required = append(sig.required, p.Name)
			}
		}

		if p.Name != "" {
			if _, dup := seen[p.Name]; dup {
				return nil, errs.ErrDuplicateParam(p.Name)
			}
			seen[p.Name] = struct{}{}
		}
		sig.params = append(sig.params, p)
	}
	return sig, nil
}

func parseParam(field reflect.StructField, tag string) (Param, error) {
	parts := strings.Split(tag, ",")
	p := Param{Name: strings.TrimSpace(parts[0]), Kind: ParamNamed}

	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "remain":
			p.Kind = ParamVariadicNamed
		case "positional":
			if p.Kind != ParamVariadicNamed {
				p.Kind = ParamPositional
			}
		}
	}

	switch {
	case p.Kind == ParamVariadicNamed:
		if field.Type.Kind() != reflect.Map || field.Type.Key().Kind() != reflect.String {
			return p, errs.ErrSinkType(field.Name)
		}
		return p, nil
	case p.Name == requestParam:
		if field.Type != httpRequestType {
			return p, errs.ErrRequestType(field.Type.String())
		}
		p.Kind = ParamRequest
		return p, nil
	case p.Name == "":
		return p, errs.ErrUntaggedField(field.Name)
	}

	if def, ok := field.Tag.Lookup(defaultTag); ok && p.Kind == ParamNamed {
		target := reflect.New(field.Type)
		if err := weakDecode(def, target.Interface()); err != nil {
			return p, errs.ErrDefaultValue(p.Name, err)
		}
		p.Default, p.HasDefault = def, true
	}
	return p, nil
}

// RequiredNamedParams lists, in declaration order, the by-name parameters
// that have no default.
func (s *Signature) RequiredNamedParams() []string {
	return append([]string(nil), s.required...)
}

// NamedParams lists, in declaration order, every by-name parameter.
func (s *Signature) NamedParams() []string {
	return append([]string(nil), s.named...)
}

// AcceptsVariadicNamed reports whether the handler declares a catch-all sink.
func (s *Signature) AcceptsVariadicNamed() bool {
	return s.sink >= 0
}

// RequiresRequestObject reports whether the handler declares a request parameter.
func (s *Signature) RequiresRequestObject() bool {
	return s.request >= 0
}

// Params returns the full declared parameter list.
func (s *Signature) Params() []Param {
	return append([]Param(nil), s.params...)
}

// needsNamedBinding is true when body or query data can reach the handler.
func (s *Signature) needsNamedBinding() bool {
	return len(s.named) > 0 || s.sink >= 0
}

func (s *Signature) newInput() reflect.Value {
	return reflect.New(s.typ)
}

// decode fills the struct pointed to by out from args. Defaults are applied to
// absent named parameters and the request object is set directly rather than
// going through the decoder.
func (s *Signature) decode(args Arguments, out reflect.Value) error {
	input := make(map[string]any, len(args)+len(s.named))
	for k, v := range args {
		if k == requestParam && s.request >= 0 {
			continue
		}
		input[k] = v
	}
	for _, p := range s.params {
		if p.Kind != ParamNamed || !p.HasDefault {
			continue
		}
		if _, ok := input[p.Name]; !ok {
			input[p.Name] = p.Default
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          paramTag,
		WeaklyTypedInput: true,
		Result:           out.Interface(),
		MatchName: func(mapKey, fieldName string) bool {
			return mapKey == fieldName
		},
	})
	if err != nil {
		return err
	}
	if err = decoder.Decode(input); err != nil {
		return err
	}

	if s.request >= 0 {
		if r, ok := args[requestParam].(*http.Request); ok {
			out.Elem().Field(s.request).Set(reflect.ValueOf(r))
		}
	}
	return nil
}

func weakDecode(input any, result any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
