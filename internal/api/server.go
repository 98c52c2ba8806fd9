package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"BlockPay/internal/agent"
	"BlockPay/internal/knowledge"
	"BlockPay/internal/observability/metrics"
	"BlockPay/internal/web3"
	"BlockPay/internal/web3/provider"
	"BlockPay/pkg/logger"
)

// AgentHandler 处理一次 /api/agent 请求，*agent.Orchestrator 实现了该接口。
type AgentHandler interface {
	Handle(ctx context.Context, req agent.AgentRequest) (agent.AgentResponse, int)
}

// ExchangeLister 查询最近的交互记录。
type ExchangeLister interface {
	ListLatest(ctx context.Context, threadID string, limit int) ([]agent.Exchange, error)
}

// ChainRegistry 是钱包接口依赖的链注册表。
type ChainRegistry interface {
	Current() (provider.Chain, error)
	Switch(name string) error
	Chains() []string
	CurrentName() string
}

// Graph 是知识图谱接口依赖的客户端能力。
type Graph interface {
	GetAtom(ctx context.Context, atomID string) (*knowledge.Atom, error)
	CreateAtom(ctx context.Context, atomType string, data map[string]any) (*knowledge.Atom, error)
	GetTriples(ctx context.Context, subject, predicate string) ([]knowledge.Triple, error)
	CreateTriple(ctx context.Context, subject, predicate, object string) (*knowledge.Triple, error)
	GetTrustScore(ctx context.Context, atomID string) (*knowledge.TrustScore, error)
	GetTopCreators(ctx context.Context, limit int) ([]knowledge.TrustScore, error)
	CreateArtworkAtom(ctx context.Context, creatorAtomID string, artwork knowledge.Artwork) (*knowledge.Atom, error)
	RecordJobCompletion(ctx context.Context, job knowledge.JobCompletion) error
}

// Dependencies 汇总各路由依赖的组件，缺失的组件对应接口返回 503。
type Dependencies struct {
	Agent     AgentHandler
	Exchanges ExchangeLister
	Chains    ChainRegistry
	Signer    *web3.Signer
	Graph     Graph
}

// Option 调整服务行为。
type Option func(*Server)

// WithAllowOrigins 设置允许跨域访问的来源。
func WithAllowOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowOrigins = origins
		}
	}
}

// WithLogger 指定访问日志使用的 logger。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr         string
	deps         Dependencies
	allowOrigins []string
	logger       *slog.Logger
	engine       *gin.Engine
}

// NewServer 构造 API 服务实例并注册全部路由。
func NewServer(addr string, deps Dependencies, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		deps:         deps,
		allowOrigins: []string{"*"},
		logger:       logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.engine = s.routes()
	return s
}

// Handler 返回可直接挂载或用于测试的 http.Handler。
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), corsMiddleware(s.allowOrigins), s.accessLog(), observe())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := engine.Group("/api")
	api.POST("/agent", s.handleAgent)
	api.GET("/exchanges", s.handleListExchanges)

	api.GET("/chain", s.handleChainInfo)
	api.GET("/chains", s.handleListChains)
	api.POST("/chain/switch", s.handleSwitchChain)
	api.GET("/wallet", s.handleWallet)
	api.GET("/wallet/:address/balance", s.handleBalance)
	api.POST("/wallet/transactions", s.handleSendTransaction)

	graph := api.Group("/graph")
	graph.GET("/atoms/:id", s.handleGetAtom)
	graph.POST("/atoms", s.handleCreateAtom)
	graph.GET("/triples", s.handleGetTriples)
	graph.POST("/triples", s.handleCreateTriple)
	graph.GET("/trust/:atomId", s.handleTrustScore)
	graph.GET("/creators", s.handleTopCreators)
	graph.POST("/artworks", s.handleCreateArtwork)
	graph.POST("/jobs", s.handleRecordJob)

	return engine
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.engine),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API 服务已启动", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
