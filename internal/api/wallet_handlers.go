package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	xerrors "BlockPay/internal/errors"
	"BlockPay/internal/web3"
	"BlockPay/internal/web3/provider"
	"BlockPay/pkg/logger"
)

type balanceResponse struct {
	Address   string `json:"address"`
	Wei       string `json:"wei"`
	Formatted string `json:"formatted"`
	Symbol    string `json:"symbol"`
}

type sendTransactionRequest struct {
	RawTransaction string `json:"rawTransaction"`
}

type switchChainRequest struct {
	Chain string `json:"chain"`
}

func (s *Server) currentChain(c *gin.Context) (provider.Chain, bool) {
	if s.deps.Chains == nil {
		unavailable(c, "链客户端")
		return provider.Chain{}, false
	}
	chain, err := s.deps.Chains.Current()
	if err != nil {
		s.writeError(c, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "链客户端不可用"))
		return provider.Chain{}, false
	}
	return chain, true
}

func (s *Server) handleChainInfo(c *gin.Context) {
	chain, ok := s.currentChain(c)
	if !ok {
		return
	}
	info, err := chain.Client.Info(c.Request.Context())
	if err != nil {
		s.writeError(c, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "查询链信息失败"))
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleListChains(c *gin.Context) {
	if s.deps.Chains == nil {
		unavailable(c, "链客户端")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chains":  s.deps.Chains.Chains(),
		"default": s.deps.Chains.CurrentName(),
	})
}

func (s *Server) handleSwitchChain(c *gin.Context) {
	if s.deps.Chains == nil {
		unavailable(c, "链客户端")
		return
	}
	var req switchChainRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Chain) == "" {
		s.writeError(c, badRequest("chain 不能为空"))
		return
	}
	if err := s.deps.Chains.Switch(req.Chain); err != nil {
		if errors.Is(err, provider.ErrUnknownChain) {
			s.writeError(c, xerrors.Wrap(xerrors.CodeNotFound, err, "未知的链: "+req.Chain))
			return
		}
		s.writeError(c, err)
		return
	}
	s.logger.Info("已切换默认链", slog.String("chain", req.Chain))
	c.JSON(http.StatusOK, gin.H{"default": req.Chain})
}

func (s *Server) handleWallet(c *gin.Context) {
	if s.deps.Signer == nil {
		unavailable(c, "钱包")
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": s.deps.Signer.Address().Hex()})
}

func (s *Server) handleBalance(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		s.writeError(c, badRequest("无效的地址: "+address))
		return
	}
	chain, ok := s.currentChain(c)
	if !ok {
		return
	}
	account := common.HexToAddress(address)
	wei, err := chain.Client.BalanceAt(c.Request.Context(), account)
	if err != nil {
		s.writeError(c, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "查询余额失败"))
		return
	}
	currency := chain.Definition.Currency
	c.JSON(http.StatusOK, balanceResponse{
		Address:   account.Hex(),
		Wei:       wei.String(),
		Formatted: web3.FormatUnits(wei, currency.Decimals),
		Symbol:    currency.Symbol,
	})
}

// handleSendTransaction 广播前端已签名的交易，并写入审计日志。
func (s *Server) handleSendTransaction(c *gin.Context) {
	var req sendTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("请求体解析失败"))
		return
	}
	raw, err := hexutil.Decode(strings.TrimSpace(req.RawTransaction))
	if err != nil || len(raw) == 0 {
		s.writeError(c, badRequest("rawTransaction 必须是 0x 开头的十六进制字符串"))
		return
	}
	chain, ok := s.currentChain(c)
	if !ok {
		return
	}
	hash, err := chain.Client.SendRawTransaction(c.Request.Context(), raw)
	if err != nil {
		s.writeError(c, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "广播交易失败"))
		return
	}
	logger.Audit().Info("wallet_transaction",
		slog.String("request_id", c.GetString(requestIDHeader)),
		slog.String("chain", chain.Name),
		slog.String("hash", hash.Hex()),
	)
	c.JSON(http.StatusOK, gin.H{"hash": hash.Hex()})
}
