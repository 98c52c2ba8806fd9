package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"BlockPay/internal/agent"
	"BlockPay/internal/observability/metrics"
)

// maxAgentBodyBytes 限制 /api/agent 请求体大小，超出按校验失败处理。
const maxAgentBodyBytes = 1 << 20

const (
	defaultExchangeLimit = 20
	maxExchangeLimit     = 200
)

// handleAgent 解析请求体并交给编排器处理，状态码与响应体由编排器决定。
func (s *Server) handleAgent(c *gin.Context) {
	if s.deps.Agent == nil {
		c.JSON(http.StatusInternalServerError, agent.AgentResponse{Error: agent.InitFailureText})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAgentBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		metrics.ObserveAgentExchange(metrics.OutcomeValidation, 0)
		c.JSON(http.StatusBadRequest, agent.AgentResponse{Error: agent.InvalidMessageText})
		return
	}
	req, err := agent.DecodeAgentRequest(body)
	if err != nil {
		metrics.ObserveAgentExchange(metrics.OutcomeValidation, 0)
		c.JSON(http.StatusBadRequest, agent.AgentResponse{Error: agent.InvalidMessageText})
		return
	}
	resp, status := s.deps.Agent.Handle(c.Request.Context(), req)
	c.JSON(status, resp)
}

func (s *Server) handleListExchanges(c *gin.Context) {
	if s.deps.Exchanges == nil {
		unavailable(c, "交互记录")
		return
	}
	limit, err := parseLimit(c.Query("limit"), defaultExchangeLimit, maxExchangeLimit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	exchanges, err := s.deps.Exchanges.ListLatest(c.Request.Context(), c.Query("thread"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if exchanges == nil {
		exchanges = []agent.Exchange{}
	}
	c.JSON(http.StatusOK, gin.H{"exchanges": exchanges})
}

// parseLimit 解析分页参数，超过上限时截断。
func parseLimit(raw string, fallback, ceiling int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, badRequest("limit 必须是正整数")
	}
	if limit > ceiling {
		limit = ceiling
	}
	return limit, nil
}
