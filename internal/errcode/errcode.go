package errcode

import "net/http"

// 响应信封中的 code 与 HTTP 状态码保持一致：
// - 200：成功
// - 4xx：请求方可修正的错误（参数、鉴权、权限、资源缺失、冲突、限流）
// - 500：系统错误
const (
	OK              = http.StatusOK
	InvalidParams   = http.StatusBadRequest
	Unauthorized    = http.StatusUnauthorized
	Forbidden       = http.StatusForbidden
	NotFound        = http.StatusNotFound
	Conflict        = http.StatusConflict
	TooManyRequests = http.StatusTooManyRequests
	SystemError     = http.StatusInternalServerError
)

// Message 返回 code 对应的默认提示。
func Message(code int) string {
	switch code {
	case OK:
		return "success"
	case InvalidParams:
		return "请求参数错误"
	case Unauthorized:
		return "未登录或登录已过期"
	case Forbidden:
		return "没有访问权限"
	case NotFound:
		return "资源不存在"
	case Conflict:
		return "资源冲突"
	case TooManyRequests:
		return "请求过于频繁"
	default:
		return "服务器内部错误"
	}
}
