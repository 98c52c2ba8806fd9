package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"BlockPay/pkg/logger"
)

// Config 描述了 BlockPay 在启动阶段一次性解析的全部配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   logger.Config   `json:"logging"`
	Agent     AgentConfig     `json:"agent"`
	LLM       LLMConfig       `json:"llm"`
	Wallet    WalletConfig    `json:"wallet"`
	Web3      Web3Config      `json:"web3"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Memory    MemoryConfig    `json:"memory"`
	Storage   StorageConfig   `json:"storage"`
	Events    EventsConfig    `json:"events"`
	Alerting  AlertingConfig  `json:"alerting"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址与跨域策略。
type ServerConfig struct {
	Address      string   `json:"address"`
	AllowOrigins []string `json:"allow_origins"`
}

// AgentConfig 控制请求编排器与智能体运行时的行为。
type AgentConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxToolRounds  int    `json:"max_tool_rounds"`
	SystemPrompt   string `json:"system_prompt"`
}

// Timeout 返回等待智能体回复的上限。
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// LLMConfig 描述 OpenAI 兼容接口的调用参数。
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
}

// WalletConfig 描述智能体钱包私钥的来源。
type WalletConfig struct {
	PrivateKey string `json:"private_key"`
	DataFile   string `json:"data_file"`
}

// Web3Config 包含访问区块链节点所需的信息。
type Web3Config struct {
	RPCURL         string `json:"rpc_url"`
	ChainID        int64  `json:"chain_id"`
	ChainName      string `json:"chain_name"`
	CurrencyName   string `json:"currency_name"`
	CurrencySymbol string `json:"currency_symbol"`
	Decimals       int    `json:"decimals"`
	ChainConfig    string `json:"chain_config"`
	DefaultChain   string `json:"default_chain"`
	WETHAddress    string `json:"weth_address"`
}

// KnowledgeConfig 描述知识图谱服务的地址。
type KnowledgeConfig struct {
	APIURL         string `json:"api_url"`
	GraphURL       string `json:"graph_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回调用知识图谱的超时时间。
func (k KnowledgeConfig) Timeout() time.Duration {
	return time.Duration(k.TimeoutSeconds) * time.Second
}

// MemoryConfig 控制会话记忆的存放位置。
type MemoryConfig struct {
	Driver      string      `json:"driver"`
	MaxMessages int         `json:"max_messages"`
	Redis       RedisConfig `json:"redis"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	Prefix     string `json:"prefix"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// TTL 返回键的过期时间。
func (r RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// StorageConfig 描述交互记录的持久化方式。
type StorageConfig struct {
	ExchangeStore ExchangeStoreConfig `json:"exchange_store"`
}

// ExchangeStoreConfig 支持 memory 与 mysql 两种驱动。
type ExchangeStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// EventsConfig 描述交互事件的投递方式。
type EventsConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 队列参数。
type RabbitMQConfig struct {
	URL     string `json:"url"`
	Queue   string `json:"queue"`
	Durable bool   `json:"durable"`
}

// AlertingConfig 描述交互失败时的告警通知。webhook_url 为空时不告警。
type AlertingConfig struct {
	WebhookURL     string   `json:"webhook_url"`
	Outcomes       []string `json:"outcomes"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// Timeout 返回发送告警的超时时间。
func (a AlertingConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// envOverrides 列出允许通过环境变量覆盖的字段。
type envOverrides struct {
	Address        string  `envconfig:"BLOCKPAY_ADDR"`
	LogLevel       string  `envconfig:"LOG_LEVEL"`
	PrivateKey     string  `envconfig:"PRIVATE_KEY"`
	WalletDataFile string  `envconfig:"WALLET_DATA_FILE"`
	RPCURL         string  `envconfig:"RPC_URL"`
	ChainID        int64   `envconfig:"CHAIN_ID"`
	OpenAIAPIKey   string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string  `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel    string  `envconfig:"OPENAI_MODEL"`
	Temperature    float32 `envconfig:"OPENAI_TEMPERATURE"`
	AgentTimeout   int     `envconfig:"AGENT_TIMEOUT_SECONDS"`
	IntuitionAPI   string  `envconfig:"INTUITION_API_URL"`
	IntuitionGraph string  `envconfig:"INTUITION_GRAPH_URL"`
	MemoryDriver   string  `envconfig:"MEMORY_DRIVER"`
	RedisAddress   string  `envconfig:"REDIS_ADDR"`
	MySQLDSN       string  `envconfig:"MYSQL_DSN"`
	EventsDriver   string  `envconfig:"EVENTS_DRIVER"`
	RabbitMQURL    string  `envconfig:"RABBITMQ_URL"`
	AlertWebhook   string  `envconfig:"ALERT_WEBHOOK_URL"`
}

// Load 解析指定路径的 JSON 配置文件，再叠加环境变量。文件不存在时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("配置文件路径为空")
	}

	var cfg Config
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("解析环境变量失败: %w", err)
	}

	override(&c.Server.Address, env.Address)
	override(&c.Logging.Level, env.LogLevel)
	override(&c.Wallet.PrivateKey, env.PrivateKey)
	override(&c.Wallet.DataFile, env.WalletDataFile)
	override(&c.Web3.RPCURL, env.RPCURL)
	override(&c.LLM.APIKey, env.OpenAIAPIKey)
	override(&c.LLM.BaseURL, env.OpenAIBaseURL)
	override(&c.LLM.Model, env.OpenAIModel)
	override(&c.Knowledge.APIURL, env.IntuitionAPI)
	override(&c.Knowledge.GraphURL, env.IntuitionGraph)
	override(&c.Memory.Driver, env.MemoryDriver)
	override(&c.Memory.Redis.Address, env.RedisAddress)
	override(&c.Storage.ExchangeStore.DSN, env.MySQLDSN)
	override(&c.Events.Driver, env.EventsDriver)
	override(&c.Events.RabbitMQ.URL, env.RabbitMQURL)
	override(&c.Alerting.WebhookURL, env.AlertWebhook)

	if env.ChainID > 0 {
		c.Web3.ChainID = env.ChainID
	}
	if env.AgentTimeout > 0 {
		c.Agent.TimeoutSeconds = env.AgentTimeout
	}
	if env.Temperature > 0 {
		c.LLM.Temperature = env.Temperature
	}
	return nil
}

func override(field *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*field = value
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if len(c.Server.AllowOrigins) == 0 {
		c.Server.AllowOrigins = []string{"*"}
	}

	if c.Agent.TimeoutSeconds <= 0 {
		c.Agent.TimeoutSeconds = 30
	}
	if c.Agent.MaxToolRounds <= 0 {
		c.Agent.MaxToolRounds = 5
	}

	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Wallet.DataFile == "" {
		c.Wallet.DataFile = "wallet_data.txt"
	}

	if c.Web3.RPCURL == "" {
		c.Web3.RPCURL = "https://testnet.rpc.intuition.systems/http"
	}
	if c.Web3.ChainID == 0 {
		c.Web3.ChainID = 13579
	}
	if c.Web3.ChainName == "" {
		c.Web3.ChainName = "Intuition Testnet"
	}
	if c.Web3.CurrencyName == "" {
		c.Web3.CurrencyName = "Intuition"
	}
	if c.Web3.CurrencySymbol == "" {
		c.Web3.CurrencySymbol = "tTRUST"
	}
	if c.Web3.Decimals == 0 {
		c.Web3.Decimals = 18
	}
	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Knowledge.APIURL == "" {
		c.Knowledge.APIURL = "https://api.intuition.so"
	}
	if c.Knowledge.GraphURL == "" {
		c.Knowledge.GraphURL = "https://graph.intuition.so"
	}
	if c.Knowledge.TimeoutSeconds <= 0 {
		c.Knowledge.TimeoutSeconds = 10
	}

	if c.Memory.Driver == "" {
		c.Memory.Driver = "memory"
	}
	if c.Memory.MaxMessages <= 0 {
		c.Memory.MaxMessages = 40
	}

	if c.Storage.ExchangeStore.Driver == "" {
		c.Storage.ExchangeStore.Driver = "memory"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}

	if len(c.Alerting.Outcomes) == 0 {
		c.Alerting.Outcomes = []string{"init_failure", "timeout"}
	}
	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
	}
}

// Validate 检查驱动名称等枚举字段。
func (c *Config) Validate() error {
	switch c.Memory.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("未知的会话记忆驱动: %s", c.Memory.Driver)
	}
	switch c.Storage.ExchangeStore.Driver {
	case "memory", "mysql":
	default:
		return fmt.Errorf("未知的交互存储驱动: %s", c.Storage.ExchangeStore.Driver)
	}
	switch c.Events.Driver {
	case "none", "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的事件驱动: %s", c.Events.Driver)
	}
	if c.Web3.ChainID < 0 {
		return fmt.Errorf("链 ID 无效: %d", c.Web3.ChainID)
	}
	return nil
}
