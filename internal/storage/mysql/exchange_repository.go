package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"BlockPay/internal/agent"
)

const (
	defaultListLimit = 20
	maxCachedRecords = 512
)

// ExchangeRepository 保存并查询智能体交互记录，同时实现 agent.Recorder。
type ExchangeRepository interface {
	agent.Recorder
	ListLatest(ctx context.Context, threadID string, limit int) ([]agent.Exchange, error)
	Close() error
}

// MemoryExchangeRepository 以 JSONL 文件追加写，并在内存中缓存最近的记录。
type MemoryExchangeRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []agent.Exchange
}

// NewMemoryExchangeRepository 创建基于本地文件的仓库，启动时回放已有记录。
func NewMemoryExchangeRepository(dataDir string) (*MemoryExchangeRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryExchangeRepository{dataFile: filepath.Join(dataDir, "exchanges.log")}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Record 以追加写的方式记录交互。
func (m *MemoryExchangeRepository) Record(_ context.Context, exchange agent.Exchange) error {
	encoded, err := json.Marshal(exchange)
	if err != nil {
		return fmt.Errorf("序列化交互记录失败: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开交互日志失败: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入交互日志失败: %w", err)
	}

	m.records = append([]agent.Exchange{exchange}, m.records...)
	if len(m.records) > maxCachedRecords {
		m.records = m.records[:maxCachedRecords]
	}
	return nil
}

// ListLatest 返回最近的交互记录，按时间倒序；threadID 为空时不过滤。
func (m *MemoryExchangeRepository) ListLatest(_ context.Context, threadID string, limit int) ([]agent.Exchange, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]agent.Exchange, 0, limit)
	for _, record := range m.records {
		if threadID != "" && record.ThreadID != threadID {
			continue
		}
		results = append(results, record)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// Close 实现 ExchangeRepository。
func (m *MemoryExchangeRepository) Close() error { return nil }

func (m *MemoryExchangeRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取交互日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var restored []agent.Exchange
	for scanner.Scan() {
		var record agent.Exchange
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]agent.Exchange{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析交互日志失败: %w", err)
	}

	if len(restored) > maxCachedRecords {
		restored = restored[:maxCachedRecords]
	}
	m.records = restored
	return nil
}

// SQLExchangeRepository 使用 MySQL 保存交互记录。
type SQLExchangeRepository struct {
	db *sql.DB
}

// NewSQLExchangeRepository 建立连接池并执行迁移。
func NewSQLExchangeRepository(ctx context.Context, cfg Config) (*SQLExchangeRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := newSchemaMigrator(db).Apply(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLExchangeRepository{db: db}, nil
}

const insertExchangeSQL = `INSERT INTO agent_exchanges
    (id, thread_id, wallet_address, message, reply, error, outcome, duration_ms, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectExchangeColumns = `SELECT id, thread_id, wallet_address, message, reply, error, outcome, duration_ms, created_at
    FROM agent_exchanges`

// Record 写入一条交互记录，重复的 ID 视为已写入。
func (s *SQLExchangeRepository) Record(ctx context.Context, exchange agent.Exchange) error {
	_, err := s.db.ExecContext(ctx, insertExchangeSQL,
		exchange.ID,
		exchange.ThreadID,
		exchange.WalletAddress,
		exchange.Message,
		exchange.Reply,
		exchange.Error,
		exchange.Outcome,
		exchange.DurationMS,
		exchange.CreatedAt.UnixMilli(),
	)
	if err != nil && !isDuplicateKey(err) {
		return fmt.Errorf("写入交互记录失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的交互记录。
func (s *SQLExchangeRepository) ListLatest(ctx context.Context, threadID string, limit int) ([]agent.Exchange, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if threadID == "" {
		rows, err = s.db.QueryContext(ctx, selectExchangeColumns+`
    ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectExchangeColumns+`
    WHERE thread_id = ? ORDER BY created_at DESC LIMIT ?`, threadID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("查询交互记录失败: %w", err)
	}
	defer rows.Close()

	var records []agent.Exchange
	for rows.Next() {
		var (
			record    agent.Exchange
			createdAt int64
		)
		if err := rows.Scan(&record.ID, &record.ThreadID, &record.WalletAddress, &record.Message,
			&record.Reply, &record.Error, &record.Outcome, &record.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("解析交互记录失败: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历交互记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLExchangeRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
