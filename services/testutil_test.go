package services

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snaplink-labs/snaplink_api/model"
	"github.com/snaplink-labs/snaplink_api/shared"
)

// newTestSql opens an isolated in-memory database with the full schema.
func newTestSql(t *testing.T) *SqlService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// A pooled second connection would see a different in-memory database.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	sqlSvc := &SqlService{}
	sqlSvc.SetDb(db)
	if err := sqlSvc.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return sqlSvc
}

// testEnv wires the registry services against an in-memory database and a
// miniredis-backed counter.
type testEnv struct {
	sqlSvc       *SqlService
	counterSvc   *CounterService
	analyticsSvc *AnalyticsService
	linkSvc      *LinkService
	qrSvc        *QRService
	dispatchSvc  *DispatchService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sqlSvc := newTestSql(t)

	mr := miniredis.RunT(t)
	redisSvc := &RedisService{}
	redisSvc.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	counterSvc := &CounterService{redisSvc: redisSvc}
	analyticsSvc := &AnalyticsService{sqlSvc: sqlSvc}
	storageSvc := &StorageService{disabled: true}

	linkSvc := &LinkService{
		baseURL:      "http://sho.rt",
		sqlSvc:       sqlSvc,
		counterSvc:   counterSvc,
		analyticsSvc: analyticsSvc,
	}
	qrSvc := &QRService{
		sqlSvc:       sqlSvc,
		counterSvc:   counterSvc,
		analyticsSvc: analyticsSvc,
		linkSvc:      linkSvc,
		renderSvc:    &QRRenderService{},
		storageSvc:   storageSvc,
	}
	dispatchSvc := &DispatchService{
		sqlSvc:       sqlSvc,
		linkSvc:      linkSvc,
		qrSvc:        qrSvc,
		analyticsSvc: analyticsSvc,
	}

	return &testEnv{
		sqlSvc:       sqlSvc,
		counterSvc:   counterSvc,
		analyticsSvc: analyticsSvc,
		linkSvc:      linkSvc,
		qrSvc:        qrSvc,
		dispatchSvc:  dispatchSvc,
	}
}

func (env *testEnv) account(t *testing.T, tier string) *model.Account {
	t.Helper()

	account := &model.Account{
		ID:    "acct-" + shared.GenerateCode(8),
		Email: shared.GenerateCode(8) + "@example.com",
		Tier:  tier,
	}
	if err := env.sqlSvc.Db().Create(account).Error; err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}
	return account
}
