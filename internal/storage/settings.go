package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"netrelay/internal/logger"
)

// 已知设置项
const (
	KeyDefaultURL  = "window.defaultUrl"
	KeyDevToolsURL = "browser.devtoolsUrl"
)

// Setting 设置项记录
type Setting struct {
	Key       string `gorm:"column:name;primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// Store 设置存储，只保存用户设置，不保存拦截到的流量
type Store struct {
	db *gorm.DB
}

// Open 打开 sqlite 数据库并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&Setting{}); err != nil {
		return nil, fmt.Errorf("migrate settings: %w", err)
	}
	return &Store{db: db}, nil
}

// Get 读取设置
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var rec Setting
	err := s.db.WithContext(ctx).Where("name = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Value, true, nil
}

// Set 写入设置，已存在则覆盖
func (s *Store) Set(ctx context.Context, key, value string) error {
	rec := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
}

// Delete 删除设置
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("name = ?", key).Delete(&Setting{}).Error
}

// All 返回全部设置
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	var recs []Setting
	if err := s.db.WithContext(ctx).Order("name").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(recs))
	for _, r := range recs {
		out[r.Key] = r.Value
	}
	return out, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
