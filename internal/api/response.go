package api

import (
	"github.com/gin-gonic/gin"

	"vectorAdmin/internal/errcode"
)

// Envelope 统一响应结构，code 与 HTTP 状态码一致。
type Envelope struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func respond(c *gin.Context, code int, data any, msg string) {
	if msg == "" {
		msg = errcode.Message(code)
	}
	c.JSON(code, Envelope{Code: code, Data: data, Message: msg})
}

// Error 写出错误信封，msg 为空时使用默认提示。
func Error(c *gin.Context, code int, msg string) { respond(c, code, nil, msg) }

// OK 返回 data 与默认的 success 提示。
func OK(c *gin.Context, data any) { respond(c, errcode.OK, data, "") }

// OKMessage 返回带自定义提示的成功信封。
func OKMessage(c *gin.Context, msg string, data any) { respond(c, errcode.OK, data, msg) }

func AbortUnauthorized(c *gin.Context) {
	code := errcode.Unauthorized
	c.AbortWithStatusJSON(code, Envelope{Code: code, Message: errcode.Message(code)})
}

func Unauthorized(c *gin.Context, msg string)    { Error(c, errcode.Unauthorized, msg) }
func BadRequest(c *gin.Context, msg string)      { Error(c, errcode.InvalidParams, msg) }
func Forbidden(c *gin.Context, msg string)       { Error(c, errcode.Forbidden, msg) }
func NotFound(c *gin.Context, msg string)        { Error(c, errcode.NotFound, msg) }
func Conflict(c *gin.Context, msg string)        { Error(c, errcode.Conflict, msg) }
func TooManyRequests(c *gin.Context, msg string) { Error(c, errcode.TooManyRequests, msg) }
func Internal(c *gin.Context, msg string)        { Error(c, errcode.SystemError, msg) }
