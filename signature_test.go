package deskweb

import (
	"net/http"
	"reflect"
	"testing"

	"github.com/dormoron/deskweb/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fullArgs struct {
	ID      string         `param:"id,positional"`
	Request *http.Request  `param:"request"`
	X       int            `param:"x"`
	Y       string         `param:"y" default:"fallback"`
	Rest    map[string]any `param:",remain"`
}

type namedOnlyArgs struct {
	X string `param:"x"`
	Y string `param:"y"`
}

type unexportedArgs struct {
	Name    string `param:"name"`
	ignored int
}

func TestInspect(t *testing.T) {
	testCases := []struct {
		name         string
		typ          reflect.Type
		wantErr      bool
		wantRequired []string
		wantNamed    []string
		wantSink     bool
		wantRequest  bool
	}{
		{
			name:         "完整参数列表",
			typ:          reflect.TypeOf(fullArgs{}),
			wantRequired: []string{"x"},
			wantNamed:    []string{"x", "y"},
			wantSink:     true,
			wantRequest:  true,
		},
		{
			name: "空参数列表",
			typ:  reflect.TypeOf(NoArgs{}),
		},
		{
			name:         "只有命名参数",
			typ:          reflect.TypeOf(namedOnlyArgs{}),
			wantRequired: []string{"x", "y"},
			wantNamed:    []string{"x", "y"},
		},
		{
			name:         "未导出字段被忽略",
			typ:          reflect.TypeOf(unexportedArgs{}),
			wantRequired: []string{"name"},
			wantNamed:    []string{"name"},
		},
		{
			name:    "不是结构体",
			typ:     reflect.TypeOf(""),
			wantErr: true,
		},
		{
			name:    "nil 类型",
			typ:     nil,
			wantErr: true,
		},
		{
			name: "缺少标签",
			typ: reflect.TypeOf(struct {
				X string
			}{}),
			wantErr: true,
		},
		{
			name: "参数名重复",
			typ: reflect.TypeOf(struct {
				A string `param:"x"`
				B string `param:"x,positional"`
			}{}),
			wantErr: true,
		},
		{
			name: "两个可变命名参数",
			typ: reflect.TypeOf(struct {
				A map[string]any `param:",remain"`
				B map[string]any `param:",remain"`
			}{}),
			wantErr: true,
		},
		{
			name: "可变命名参数不是 map",
			typ: reflect.TypeOf(struct {
				A []string `param:",remain"`
			}{}),
			wantErr: true,
		},
		{
			name: "request 类型错误",
			typ: reflect.TypeOf(struct {
				R http.Request `param:"request"`
			}{}),
			wantErr: true,
		},
		{
			name: "默认值无法转换",
			typ: reflect.TypeOf(struct {
				N int `param:"n" default:"abc"`
			}{}),
			wantErr: true,
		},
		{
			name: "空参数名",
			typ: reflect.TypeOf(struct {
				N int `param:",positional"`
			}{}),
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sig, err := Inspect(tc.typ)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantRequired, sig.RequiredNamedParams())
			assert.Equal(t, tc.wantNamed, sig.NamedParams())
			assert.Equal(t, tc.wantSink, sig.AcceptsVariadicNamed())
			assert.Equal(t, tc.wantRequest, sig.RequiresRequestObject())
		})
	}
}

func TestInspect_RequestPosition(t *testing.T) {
	testCases := []struct {
		name string
		typ  reflect.Type
	}{
		{
			name: "request 之后是位置参数",
			typ: reflect.TypeOf(struct {
				R  *http.Request `param:"request"`
				ID string        `param:"id,positional"`
			}{}),
		},
		{
			name: "两个 request",
			typ: reflect.TypeOf(struct {
				R1 *http.Request `param:"request"`
				R2 *http.Request `param:"request"`
			}{}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Inspect(tc.typ)
			require.Error(t, err)
			assert.True(t, errs.IsRequestPosition(err))
		})
	}
}

func TestSignature_Params(t *testing.T) {
	sig, err := Inspect(reflect.TypeOf(fullArgs{}))
	require.NoError(t, err)

	params := sig.Params()
	require.Len(t, params, 5)
	kinds := make([]ParamKind, 0, len(params))
	for _, p := range params {
		kinds = append(kinds, p.Kind)
	}
	assert.Equal(t, []ParamKind{ParamPositional, ParamRequest, ParamNamed, ParamNamed, ParamVariadicNamed}, kinds)
	assert.True(t, params[3].HasDefault)
	assert.Equal(t, "fallback", params[3].Default)
	assert.Equal(t, "variadic-named", ParamVariadicNamed.String())

	// 返回的是副本
	params[0].Name = "changed"
	assert.Equal(t, "id", sig.Params()[0].Name)
}

func TestSignature_Decode(t *testing.T) {
	sig, err := Inspect(reflect.TypeOf(fullArgs{}))
	require.NoError(t, err)

	req := httpRequest(t, http.MethodGet, "/item/5", nil)
	out := sig.newInput()
	err = sig.decode(Arguments{
		"id":      "5",
		"x":       "42",
		"extra":   "value",
		"request": req,
	}, out)
	require.NoError(t, err)

	in := out.Interface().(*fullArgs)
	assert.Equal(t, "5", in.ID)
	assert.Equal(t, 42, in.X)
	assert.Equal(t, "fallback", in.Y)
	assert.Same(t, req, in.Request)
	assert.Equal(t, map[string]any{"extra": "value"}, in.Rest)
}

func TestSignature_DecodeInvalid(t *testing.T) {
	sig, err := Inspect(reflect.TypeOf(fullArgs{}))
	require.NoError(t, err)

	err = sig.decode(Arguments{"x": "not a number"}, sig.newInput())
	assert.Error(t, err)
}
