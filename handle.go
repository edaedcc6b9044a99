package deskweb

import "context"

// Handler 是业务处理函数的签名。
//
// In 是处理函数声明的参数列表（一个带 `param` 标签的结构体），框架在每次请求时
// 从路径参数、查询字符串和请求体中绑定它。返回值原样作为响应负载；返回
// *APIError 会被转换为结构化错误响应，其它错误交给传输层处理。
//
// 示例:
//
//	func itemHandler(ctx context.Context, in struct {
//		ID string `param:"id,positional"`
//	}) (any, error) {
//		return map[string]string{"id": in.ID}, nil
//	}
type Handler[In any] func(ctx context.Context, in In) (any, error)

// NoArgs 是空参数列表。
type NoArgs struct{}
