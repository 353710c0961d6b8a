package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"voting-ledger/models"
)

type blockModel struct {
	Index      uint64 `gorm:"column:block_index;primaryKey;autoIncrement:false"`
	Timestamp  int64  `gorm:"column:timestamp;not null"`
	Data       []byte `gorm:"column:data;not null"`
	PrevHash   []byte `gorm:"column:prev_hash;not null"`
	Hash       []byte `gorm:"column:hash;not null;uniqueIndex"`
	Nonce      uint64 `gorm:"column:nonce;not null"`
	Difficulty uint8  `gorm:"column:difficulty;not null"`
}

func (blockModel) TableName() string {
	return "ledger_blocks"
}

// PostgresStore keeps the journal in the ledger_blocks table. The block index
// is the primary key, so two writers racing for the same height cannot both
// succeed.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func ConnectPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewPostgresStore(ctx, db, logger)
}

// NewPostgresStore migrates the schema on db and returns a store using it.
func NewPostgresStore(ctx context.Context, db *gorm.DB, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.WithContext(ctx).AutoMigrate(&blockModel{}); err != nil {
		return nil, fmt.Errorf("migrate ledger_blocks: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) Append(ctx context.Context, block *models.Block) error {
	row := blockModel{
		Index:      block.Index,
		Timestamp:  block.Timestamp,
		Data:       block.Data,
		PrevHash:   block.PrevHash,
		Hash:       block.Hash,
		Nonce:      block.Nonce,
		Difficulty: block.Difficulty,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var height int64
		if err := tx.Model(&blockModel{}).Count(&height).Error; err != nil {
			return err
		}
		if uint64(height) != block.Index {
			return fmt.Errorf("%w: block %d appended at height %d", ErrConflict, block.Index, height)
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: block %d already stored", ErrConflict, block.Index)
		}
		if errors.Is(err, ErrConflict) {
			return err
		}
		s.logger.Error("failed to persist block",
			zap.Uint64("index", block.Index),
			zap.Error(err),
		)
		return fmt.Errorf("insert block %d: %w", block.Index, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]*models.Block, error) {
	var rows []blockModel
	if err := s.db.WithContext(ctx).Order("block_index ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load ledger_blocks: %w", err)
	}

	blocks := make([]*models.Block, 0, len(rows))
	for _, row := range rows {
		blocks = append(blocks, &models.Block{
			Index:      row.Index,
			Timestamp:  row.Timestamp,
			Data:       row.Data,
			PrevHash:   row.PrevHash,
			Hash:       row.Hash,
			Nonce:      row.Nonce,
			Difficulty: row.Difficulty,
		})
	}
	return blocks, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
