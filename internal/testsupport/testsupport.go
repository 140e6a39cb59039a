package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attently/internal"
	"attently/internal/config"
	"attently/internal/engagement"
	"attently/internal/intervals"
	"attently/internal/patterns"
	"attently/internal/rollups"
	"attently/internal/sessions"
	"attently/internal/settings"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with attently's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all attently models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&settings.Setting{},
		&intervals.ActivityInterval{},
		&rollups.ActivityRollup{},
		&rollups.ReadingRollup{},
		&rollups.WritingRollup{},
		&sessions.FocusSession{},
		&engagement.BehaviorEvent{},
		&patterns.BehavioralPattern{},
	}
}

// SetupTestDB creates a test database with all attently models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by root test name so subtests share the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	if err := settings.SetupDefaultSettings(db); err != nil {
		t.Fatalf("testsupport: failed to seed settings: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CleanTables clears the given tables between subtests.
func CleanTables(db *gorm.DB, tables []string) {
	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CleanActivityData clears the raw and aggregated activity tables.
func CleanActivityData(db *gorm.DB) {
	CleanTables(db, []string{
		"activity_intervals", "activity_rollups", "reading_rollups",
		"writing_rollups", "behavior_events", "behavioral_patterns",
		"focus_sessions",
	})
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

// CreateTestInterval stores one closed activity interval.
func CreateTestInterval(t *testing.T, db *gorm.DB, deviceID, domain, category string, startedAt time.Time, activeSeconds, idleSeconds int) intervals.ActivityInterval {
	t.Helper()

	end := startedAt.Add(time.Duration(activeSeconds+idleSeconds) * time.Second).UTC()
	iv := intervals.ActivityInterval{
		DeviceID:      deviceID,
		Domain:        domain,
		Category:      category,
		StartedAt:     startedAt.UTC(),
		EndedAt:       &end,
		SecondsActive: activeSeconds,
		IdleSeconds:   idleSeconds,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.Create(&iv).Error; err != nil {
		t.Fatalf("testsupport: failed to create interval: %v", err)
	}
	return iv
}

// CreateTestBehaviorEvent stores one behavior event.
func CreateTestBehaviorEvent(t *testing.T, db *gorm.DB, domain, eventType string, valueInt int, valueFloat float64, timestamp time.Time) engagement.BehaviorEvent {
	t.Helper()

	ev := engagement.BehaviorEvent{
		Domain:     domain,
		EventType:  eventType,
		ValueInt:   valueInt,
		ValueFloat: valueFloat,
		Timestamp:  timestamp.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.Create(&ev).Error; err != nil {
		t.Fatalf("testsupport: failed to create behavior event: %v", err)
	}
	return ev
}

// CreateTestFocusSession stores one focus session. A zero endedAt leaves the
// session open.
func CreateTestFocusSession(t *testing.T, db *gorm.DB, startedAt, endedAt time.Time, plannedSeconds int) sessions.FocusSession {
	t.Helper()

	s := sessions.FocusSession{
		StartedAt:              startedAt.UTC(),
		PlannedDurationSeconds: plannedSeconds,
		CreatedAt:              time.Now().UTC(),
	}
	if !endedAt.IsZero() {
		end := endedAt.UTC()
		s.EndedAt = &end
	}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("testsupport: failed to create focus session: %v", err)
	}
	return s
}
