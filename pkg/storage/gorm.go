package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const handlesTableName = "key_handles"

type GormHandlesRepo struct {
	db      *gorm.DB
	querier *gormDBQuerier[models.KeyHandle]
}

func NewGormHandlesRepo(log *logrus.Entry, db *gorm.DB) (HandlesRepo, error) {
	querier, err := tableQuery[models.KeyHandle](log, db, handlesTableName, "id")
	if err != nil {
		return nil, err
	}

	return &GormHandlesRepo{
		db:      db,
		querier: querier,
	}, nil
}

func (repo *GormHandlesRepo) Count(ctx context.Context) (int, error) {
	return repo.querier.Count(ctx)
}

func (repo *GormHandlesRepo) SelectAll(ctx context.Context, applyFunc func(handle models.KeyHandle)) error {
	return repo.querier.SelectAll(ctx, applyFunc)
}

func (repo *GormHandlesRepo) SelectExistsByID(ctx context.Context, id string) (bool, *models.KeyHandle, error) {
	return repo.querier.SelectExists(ctx, id)
}

func (repo *GormHandlesRepo) Insert(ctx context.Context, handle *models.KeyHandle) (*models.KeyHandle, error) {
	return repo.querier.Insert(ctx, handle, handle.ID)
}

func (repo *GormHandlesRepo) Update(ctx context.Context, handle *models.KeyHandle) (*models.KeyHandle, error) {
	return repo.querier.Update(ctx, handle, handle.ID)
}

type gormDBQuerier[E any] struct {
	*gorm.DB
	tableName        string
	primaryKeyColumn string
}

func tableQuery[E any](log *logrus.Entry, db *gorm.DB, tableName string, primaryKeyColumn string) (*gormDBQuerier[E], error) {
	var model E
	err := db.Table(tableName).AutoMigrate(&model)
	if err != nil {
		return nil, err
	}

	log.Debugf("table %s ready", tableName)
	return &gormDBQuerier[E]{
		DB:               db,
		tableName:        tableName,
		primaryKeyColumn: primaryKeyColumn,
	}, nil
}

func (db *gormDBQuerier[E]) Count(ctx context.Context) (int, error) {
	var count int64
	tx := db.WithContext(ctx).Table(db.tableName)
	tx.Count(&count)
	if err := tx.Error; err != nil {
		return -1, err
	}

	return int(count), nil
}

func (db *gormDBQuerier[E]) SelectAll(ctx context.Context, applyFunc func(elem E)) error {
	var elems []E
	tx := db.WithContext(ctx).Table(db.tableName).FindInBatches(&elems, 100, func(tx *gorm.DB, batch int) error {
		for _, elem := range elems {
			applyFunc(elem)
		}
		return nil
	})

	return tx.Error
}

func (db *gormDBQuerier[E]) SelectExists(ctx context.Context, id string) (bool, *E, error) {
	var elem E
	tx := db.WithContext(ctx).Table(db.tableName).First(&elem, fmt.Sprintf("%s = ?", db.primaryKeyColumn), id)
	if err := tx.Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil, nil
		}
		return false, nil, err
	}

	return true, &elem, nil
}

func (db *gormDBQuerier[E]) Insert(ctx context.Context, elem *E, id string) (*E, error) {
	tx := db.WithContext(ctx).Table(db.tableName).Create(elem)
	if err := tx.Error; err != nil {
		return nil, err
	}

	_, newElem, err := db.SelectExists(ctx, id)
	return newElem, err
}

func (db *gormDBQuerier[E]) Update(ctx context.Context, elem *E, id string) (*E, error) {
	tx := db.WithContext(ctx).Table(db.tableName).Where(fmt.Sprintf("%s = ?", db.primaryKeyColumn), id).Save(elem)
	if err := tx.Error; err != nil {
		return nil, err
	}

	_, newElem, err := db.SelectExists(ctx, id)
	return newElem, err
}

func CreatePostgresDBConnection(logger *logrus.Entry, cfg config.Storage) (*gorm.DB, error) {
	dbLogger := &GormLogger{
		logger: logger,
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable", cfg.Hostname, cfg.Username, cfg.Password, cfg.Database, cfg.Port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: dbLogger,
	})

	return db, err
}

// sqliteConnWrapper rewrites ILIKE into LIKE so queries written for
// postgres keep working on sqlite.
type sqliteConnWrapper struct {
	gorm.ConnPool
}

func (c *sqliteConnWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	query = strings.ReplaceAll(query, " ILIKE ", " LIKE ")
	return c.ConnPool.ExecContext(ctx, query, args...)
}

func (c *sqliteConnWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	query = strings.ReplaceAll(query, " ILIKE ", " LIKE ")
	return c.ConnPool.QueryContext(ctx, query, args...)
}

func (c *sqliteConnWrapper) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	query = strings.ReplaceAll(query, " ILIKE ", " LIKE ")
	return c.ConnPool.QueryRowContext(ctx, query, args...)
}

func (c *sqliteConnWrapper) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	query = strings.ReplaceAll(query, " ILIKE ", " LIKE ")
	return c.ConnPool.PrepareContext(ctx, query)
}

func CreateSQLiteDBConnection(log *logrus.Entry, cfg config.Storage) (*gorm.DB, error) {
	dbPath := cfg.DatabasePath
	if cfg.InMemory {
		dbPath = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	db.ConnPool = &sqliteConnWrapper{ConnPool: db.ConnPool}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// SQLite performs best with a single writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
		return nil, err
	}

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}

	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, err
	}

	if err := db.Exec("PRAGMA synchronous = NORMAL").Error; err != nil {
		return nil, err
	}

	if err := db.Exec("PRAGMA case_sensitive_like = OFF").Error; err != nil {
		return nil, err
	}

	return db, nil
}

// Logrus GORM iface implementation
type GormLogger struct {
	logger *logrus.Entry
}

func (l *GormLogger) LogMode(lvl gormlogger.LogLevel) gormlogger.Interface {
	newlogger := *l
	return &newlogger
}

func (l *GormLogger) Info(ctx context.Context, str string, rest ...interface{}) {
	l.logger.Infof(str, rest...)
}

func (l *GormLogger) Warn(ctx context.Context, str string, rest ...interface{}) {
	l.logger.Warnf(str, rest...)
}

func (l *GormLogger) Error(ctx context.Context, str string, rest ...interface{}) {
	l.logger.Errorf(str, rest...)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	sql, rows := fc()
	if err != nil {
		l.logger.Errorf("Took: %s, Err:%s, SQL: %s, AffectedRows: %d", time.Since(begin).String(), err, sql, rows)
	} else {
		l.logger.Tracef("Took: %s, SQL: %s, AffectedRows: %d", time.Since(begin).String(), sql, rows)
	}
}
