package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"BlockPay/deploy/migrations"
	"BlockPay/pkg/logger"
)

const createSchemaTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        file_name VARCHAR(255) NOT NULL,
        applied_at BIGINT NOT NULL
)`

const recordSchemaVersionSQL = `INSERT INTO schema_migrations (version, file_name, applied_at) VALUES (?, ?, ?)`

// schemaStep 是一个迁移文件拆分后的可执行单元。
type schemaStep struct {
	version    string
	file       string
	statements []string
}

// schemaMigrator 将 deploy/migrations 下的 SQL 依次应用到交互记录库。
type schemaMigrator struct {
	db     *sql.DB
	source fs.FS
	log    *slog.Logger
	now    func() time.Time
}

func newSchemaMigrator(db *sql.DB) *schemaMigrator {
	return &schemaMigrator{
		db:     db,
		source: migrations.Files,
		log:    logger.Named("migrations"),
		now:    time.Now,
	}
}

// Apply 执行所有未记录在 schema_migrations 中的迁移，返回本次应用的版本。
func (m *schemaMigrator) Apply(ctx context.Context) ([]string, error) {
	steps, err := m.plan()
	if err != nil {
		return nil, err
	}
	if _, err := m.db.ExecContext(ctx, createSchemaTableSQL); err != nil {
		return nil, fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}
	done, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, step := range steps {
		if done[step.version] {
			m.log.Debug("迁移已存在，跳过", slog.String("version", step.version))
			continue
		}
		started := m.now()
		if err := m.applyStep(ctx, step); err != nil {
			m.log.Error("迁移失败",
				slog.String("version", step.version),
				slog.String("file", step.file),
				slog.Any("error", err),
			)
			return applied, err
		}
		m.log.Info("迁移已应用",
			slog.String("version", step.version),
			slog.String("file", step.file),
			slog.Int("statements", len(step.statements)),
			slog.Duration("elapsed", m.now().Sub(started)),
		)
		applied = append(applied, step.version)
	}
	if len(applied) == 0 {
		m.log.Debug("交互记录库结构已是最新")
	}
	return applied, nil
}

func (m *schemaMigrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("查询已应用迁移失败: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("读取迁移版本失败: %w", err)
		}
		done[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取迁移版本失败: %w", err)
	}
	return done, nil
}

func (m *schemaMigrator) applyStep(ctx context.Context, step schemaStep) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("迁移 %s 开启事务失败: %w", step.file, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range step.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("迁移 %s 第 %d 条语句失败: %w", step.file, i+1, err)
		}
	}
	if _, err = tx.ExecContext(ctx, recordSchemaVersionSQL, step.version, step.file, m.now().Unix()); err != nil {
		return fmt.Errorf("记录迁移 %s 失败: %w", step.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移 %s 失败: %w", step.version, err)
	}
	return nil
}

// plan 读取所有 .sql 文件并按版本排序，同一版本出现多个文件视为错误。
func (m *schemaMigrator) plan() ([]schemaStep, error) {
	names, err := fs.Glob(m.source, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("列出迁移文件失败: %w", err)
	}

	owners := make(map[string]string, len(names))
	steps := make([]schemaStep, 0, len(names))
	for _, name := range names {
		raw, err := fs.ReadFile(m.source, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		statements := sqlStatements(string(raw))
		if len(statements) == 0 {
			continue
		}
		version := migrationVersion(name)
		if prev, dup := owners[version]; dup {
			return nil, fmt.Errorf("迁移版本 %s 重复: %s 与 %s", version, prev, name)
		}
		owners[version] = name
		steps = append(steps, schemaStep{version: version, file: name, statements: statements})
	}

	slices.SortFunc(steps, func(a, b schemaStep) int {
		return strings.Compare(a.version, b.version)
	})
	return steps, nil
}

// sqlStatements 去掉 "--" 注释行后按分号拆分语句。
func sqlStatements(content string) []string {
	var body strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(body.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// migrationVersion 取文件名中第一个下划线之前的部分，例如 0001_create_exchanges.sql 得到 0001。
func migrationVersion(name string) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	if prefix, _, ok := strings.Cut(base, "_"); ok && prefix != "" {
		return prefix
	}
	return base
}
