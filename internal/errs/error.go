package errs

import (
	"errors"
	"fmt"
)

var (
	// handler shape errors
	errNotStruct        = errors.New("deskweb: 参数列表必须是结构体")
	errUntaggedField    = errors.New("deskweb: 导出字段缺少 param 标签")
	errDuplicateParam   = errors.New("deskweb: 参数名重复")
	errDuplicateSink    = errors.New("deskweb: 只允许一个可变命名参数")
	errSinkType         = errors.New("deskweb: 可变命名参数必须是以 string 为键的 map")
	errRequestType      = errors.New("deskweb: request 参数必须是 *http.Request")
	errRequestPosition  = errors.New("deskweb: request 参数之后只能声明命名参数或可变命名参数")
	errDefaultValue     = errors.New("deskweb: 默认值无法转换为参数类型")
	errNotAnnotated     = errors.New("deskweb: 处理函数缺少 method 或 path")
	errNilHandler       = errors.New("deskweb: 处理函数为 nil")
	errRegisterFrozen   = errors.New("deskweb: 路由表已冻结，不能再注册")
	errModuleNotFound   = errors.New("deskweb: 找不到模块")
	errPatternSyntax    = errors.New("deskweb: 路由模式非法")
	errPatternNotRooted = errors.New("deskweb: 路由必须以 '/' 开头")

	// request input errors
	errMissingContentType = errors.New("Missing Content-Type")
	errBodyNotObject      = errors.New("JSON body must be object")
	errMalformedBody      = errors.New("Malformed request body")
	errUnsupportedType    = errors.New("Unsupported Content-Type")
	errMissingArgument    = errors.New("Missing argument")
	errInvalidArgument    = errors.New("Invalid argument")
	errBodyTooLarge       = errors.New("Request body too large")
)

func ErrNotStruct(typ string) error {
	return fmt.Errorf("%w, 实际类型 %s", errNotStruct, typ)
}

func ErrUntaggedField(field string) error {
	return fmt.Errorf("%w [%s]", errUntaggedField, field)
}

func ErrDuplicateParam(name string) error {
	return fmt.Errorf("%w [%s]", errDuplicateParam, name)
}

func ErrDuplicateSink(field string) error {
	return fmt.Errorf("%w [%s]", errDuplicateSink, field)
}

func ErrSinkType(field string) error {
	return fmt.Errorf("%w [%s]", errSinkType, field)
}

func ErrRequestType(typ string) error {
	return fmt.Errorf("%w, 实际类型 %s", errRequestType, typ)
}

func ErrRequestPosition(field string) error {
	return fmt.Errorf("%w，%s 位于 request 之后", errRequestPosition, field)
}

func ErrDefaultValue(name string, err error) error {
	return fmt.Errorf("%w [%s] %w", errDefaultValue, name, err)
}

func ErrNotAnnotated() error {
	return fmt.Errorf("%w", errNotAnnotated)
}

func ErrNilHandler() error {
	return fmt.Errorf("%w", errNilHandler)
}

func ErrRegisterFrozen(method, path string) error {
	return fmt.Errorf("%w [%s %s]", errRegisterFrozen, method, path)
}

func ErrModuleNotFound(module string) error {
	return fmt.Errorf("%w [%s]", errModuleNotFound, module)
}

func ErrPatternSyntax(path string, err error) error {
	if err == nil {
		return fmt.Errorf("%w [%s]", errPatternSyntax, path)
	}
	return fmt.Errorf("%w [%s] %w", errPatternSyntax, path, err)
}

func ErrPatternNotRooted(path string) error {
	return fmt.Errorf("%w [%s]", errPatternNotRooted, path)
}

func ErrMissingContentType() error {
	return errMissingContentType
}

func ErrBodyNotObject() error {
	return errBodyNotObject
}

func ErrMalformedBody(err error) error {
	return fmt.Errorf("%w: %w", errMalformedBody, err)
}

func ErrUnsupportedType(mediaType string) error {
	return fmt.Errorf("%w: %s", errUnsupportedType, mediaType)
}

func ErrMissingArgument(name string) error {
	return fmt.Errorf("%w: %s", errMissingArgument, name)
}

func ErrInvalidArgument(err error) error {
	return fmt.Errorf("%w: %w", errInvalidArgument, err)
}

func ErrBodyTooLarge() error {
	return errBodyTooLarge
}

// IsRequestPosition reports whether err came from a misplaced request parameter.
func IsRequestPosition(err error) bool {
	return errors.Is(err, errRequestPosition)
}

// IsUnsupportedType reports whether err names an unsupported media type.
func IsUnsupportedType(err error) bool {
	return errors.Is(err, errUnsupportedType)
}

// IsBodyTooLarge reports whether err came from an oversized body.
func IsBodyTooLarge(err error) bool {
	return errors.Is(err, errBodyTooLarge)
}
