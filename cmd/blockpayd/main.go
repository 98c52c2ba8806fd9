package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"BlockPay/internal/agent"
	"BlockPay/internal/agent/toolkit"
	"BlockPay/internal/api"
	"BlockPay/internal/config"
	"BlockPay/internal/events"
	"BlockPay/internal/knowledge"
	"BlockPay/internal/memory"
	"BlockPay/internal/observability/alerting"
	"BlockPay/internal/storage/mysql"
	redisstore "BlockPay/internal/storage/redis"
	"BlockPay/internal/web3"
	"BlockPay/internal/web3/provider"
	"BlockPay/pkg/logger"
)

// main 是 BlockPay 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("blockpayd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("BLOCKPAY_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "blockpay.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()
	lg := logger.Named("blockpayd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 私钥只在启动时解析一次。
	signer, source, err := web3.ResolveSigner(cfg.Wallet.PrivateKey, cfg.Wallet.DataFile)
	if err != nil {
		return err
	}
	if source == web3.KeySourceGenerated {
		lg.Warn("已生成新的钱包私钥，请将其迁移到 PRIVATE_KEY 环境变量",
			slog.String("file", cfg.Wallet.DataFile),
			slog.String("address", signer.Address().Hex()),
		)
	}
	lg.Info("钱包已就绪", slog.String("address", signer.Address().Hex()), slog.String("source", string(source)))

	chains, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chains.Close()

	graph := knowledge.NewClient(knowledge.Config{
		APIURL:   cfg.Knowledge.APIURL,
		GraphURL: cfg.Knowledge.GraphURL,
		Timeout:  cfg.Knowledge.Timeout(),
	})

	store, err := openMemory(ctx, cfg.Memory)
	if err != nil {
		return err
	}
	defer store.Close()

	// LLM 未配置时仍然启动服务，/api/agent 返回初始化失败。
	var llm toolkit.LLM
	if client, err := toolkit.NewOpenAI(cfg.LLM); err != nil {
		lg.Warn("大模型客户端未配置", slog.Any("error", err))
	} else {
		llm = client
	}

	// 智能体的网络在启动时固定，切换默认链只影响钱包能力接口。
	agentChain, err := chains.Pin("")
	if err != nil {
		return err
	}
	lg.Info("智能体网络已固定", slog.String("chain", agentChain.Name()))

	kit := toolkit.New(llm, signer, agentChain,
		toolkit.WithModel(cfg.LLM.Model),
		toolkit.WithTemperature(cfg.LLM.Temperature),
		toolkit.WithSystemPrompt(cfg.Agent.SystemPrompt),
		toolkit.WithMaxRounds(cfg.Agent.MaxToolRounds),
		toolkit.WithMemory(store),
		toolkit.WithProviders(
			toolkit.WalletProvider{},
			toolkit.ERC20Provider{},
			toolkit.WETHProvider{},
			toolkit.NewPythProvider(toolkit.DefaultHermesURL, cfg.Knowledge.Timeout()),
			toolkit.NewIntuitionProvider(graph),
		),
	)

	exchanges, err := openExchangeRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer exchanges.Close()

	recorders := []agent.Recorder{exchanges}
	publisher, err := events.Open(ctx, cfg.Events)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
		recorders = append(recorders, publisher)
	}
	if cfg.Alerting.WebhookURL != "" {
		notifier := alerting.NewWebhookNotifier(cfg.Alerting.WebhookURL, cfg.Alerting.Timeout())
		recorders = append(recorders, alerting.NewRecorder(alerting.NewFanout(notifier), cfg.Alerting.Outcomes...))
	}

	orchestrator := agent.New(kit,
		agent.WithTimeout(cfg.Agent.Timeout()),
		agent.WithRecorder(agent.Recorders(recorders...)),
	)

	server := api.NewServer(cfg.Server.Address, api.Dependencies{
		Agent:     orchestrator,
		Exchanges: exchanges,
		Chains:    chains,
		Signer:    signer,
		Graph:     graph,
	}, api.WithAllowOrigins(cfg.Server.AllowOrigins...))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	lg.Info("服务已停止")
	return nil
}

func openMemory(ctx context.Context, cfg config.MemoryConfig) (memory.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.NewInMemoryStore(cfg.MaxMessages), nil
	case "redis":
		client, err := redisstore.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return memory.NewRedisStore(client, cfg.Redis.Prefix, cfg.MaxMessages, cfg.Redis.TTL()), nil
	default:
		return nil, fmt.Errorf("未知的会话记忆驱动: %s", cfg.Driver)
	}
}

func openExchangeRepository(ctx context.Context, cfg *config.Config) (mysql.ExchangeRepository, error) {
	switch cfg.Storage.ExchangeStore.Driver {
	case "", "memory":
		repo, err := mysql.NewMemoryExchangeRepository(cfg.Runtime.DataDir)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mysql":
		repo, err := mysql.NewSQLExchangeRepository(ctx, mysql.ConfigFrom(cfg.Storage.ExchangeStore))
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, mysql.ErrUnsupportedDriver
	}
}
