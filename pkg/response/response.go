package response

import (
	"net/http"

	"billsplit/internal/apperror"

	"github.com/gin-gonic/gin"
)

// ErrorBody 错误响应体
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error 按错误分类写出状态码和 {error, code}。
// 原始错误挂到 gin 上下文，由日志中间件统一记录。
func Error(c *gin.Context, err error) {
	status, code, message := apperror.HTTPStatus(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorBody{Error: message, Code: code})
}

// ParamError 请求参数绑定失败
func ParamError(c *gin.Context, message string) {
	Error(c, apperror.Validation(message))
}
