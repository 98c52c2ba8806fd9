package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	xerrors "BlockPay/internal/errors"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError 按错误码映射状态码，只向调用方暴露错误描述，原因写入日志。
func (s *Server) writeError(c *gin.Context, err error) {
	status, message, code := xerrors.Public(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("请求处理失败",
			slog.String("request_id", c.GetString(requestIDHeader)),
			slog.String("path", c.FullPath()),
			slog.String("code", string(code)),
			slog.Any("error", err),
		)
	}
	c.AbortWithStatusJSON(status, errorBody{Error: message, Code: string(code)})
}

func unavailable(c *gin.Context, component string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{
		Error: component + " 未配置",
		Code:  string(xerrors.CodeInitializationFailure),
	})
}

func badRequest(message string) error {
	return xerrors.New(xerrors.CodeInvalidArgument, message)
}
