package settings

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"attently/internal/timewindow"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// Setting keys
const (
	KeyExcludedKeywords = "excluded_keywords"
	KeyDayStartHour     = "day_start_hour"
	KeyAgentAPIKey      = "agent_api_key"
)

// MaxExcludedKeywords caps the suppression list; entries beyond it are ignored.
const MaxExcludedKeywords = 50

var excludedKeywordsCache *cache.Cache[string, []string]

// SetupDefaultSettings initializes default settings in the database
func SetupDefaultSettings(dbConn *gorm.DB) error {
	settings := []Setting{
		{Key: KeyExcludedKeywords, Value: ""},
		{Key: KeyDayStartHour, Value: strconv.Itoa(timewindow.DefaultDayStartHour)},
	}
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		for _, setting := range settings {
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.Value, time.Now().UTC(), time.Now().UTC()).Error
			if err != nil {
				slog.Default().Error("Failed to upsert setting", slog.String("key", setting.Key), slog.Any("error", err))
				return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	// Initialize the cache
	loadCache(dbConn, slog.Default())

	return err
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// UpdateSetting updates a setting in the database using a transaction
func UpdateSetting(dbConn *gorm.DB, key string, value string) error {
	tx := dbConn.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	result := tx.Model(&Setting{}).Where("key = ?", key).Update("value", value)
	if result.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update setting: %w", result.Error)
	}

	// If no rows were affected, the setting might not exist - try to create it
	if result.RowsAffected == 0 {
		setting := Setting{
			Key:   key,
			Value: value,
		}
		if err := tx.Create(&setting).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create setting: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Clear and reload the cache after successful update
	if excludedKeywordsCache != nil {
		excludedKeywordsCache.Clear()
	}
	loadCache(dbConn, slog.Default())

	return nil
}

// CreateOrUpdateSetting creates a new setting or updates an existing one
func CreateOrUpdateSetting(dbConn *gorm.DB, key string, value string) error {
	var count int64
	if err := dbConn.Model(&Setting{}).Where("key = ?", key).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check if setting exists: %w", err)
	}

	if count > 0 {
		return UpdateSetting(dbConn, key, value)
	}

	setting := Setting{
		Key:   key,
		Value: value,
	}
	if err := dbConn.Create(&setting).Error; err != nil {
		return fmt.Errorf("failed to create setting: %w", err)
	}
	return nil
}

// GetExcludedKeywords returns the lower-cased keyword list used for privacy
// suppression. Any lookup failure fails open to an empty list: a broken
// settings read must never take a report down.
func GetExcludedKeywords() []string {
	if excludedKeywordsCache == nil {
		return nil
	}

	keywords, err := excludedKeywordsCache.Get(KeyExcludedKeywords)
	if err != nil {
		slog.Default().Warn("Failed to load excluded keywords, suppression disabled", slog.Any("error", err))
		return nil
	}
	return keywords
}

// DomainSuppressed reports whether a domain matches any excluded keyword.
// Keywords are stored lower-cased; the domain is folded before matching.
func DomainSuppressed(domain string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	d := strings.ToLower(domain)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

// SaveExcludedKeywords normalizes, dedupes, caps, and stores the keyword list.
func SaveExcludedKeywords(dbConn *gorm.DB, keywords []string) error {
	seen := make(map[string]bool, len(keywords))
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		cleaned = append(cleaned, kw)
		if len(cleaned) == MaxExcludedKeywords {
			break
		}
	}
	return UpdateSetting(dbConn, KeyExcludedKeywords, strings.Join(cleaned, ","))
}

// GetDayStartHour returns the configured day-start hour for time-of-day
// bucketing, clamped to [0,23]. Falls back to the default on any error.
func GetDayStartHour(dbConn *gorm.DB) int {
	value, err := GetSetting(dbConn, KeyDayStartHour)
	if err != nil {
		return timewindow.DefaultDayStartHour
	}
	hour, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || hour < 0 || hour > 23 {
		return timewindow.DefaultDayStartHour
	}
	return hour
}

// SaveDayStartHour stores the day-start hour after validating it.
func SaveDayStartHour(dbConn *gorm.DB, hour int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("day start hour must be in [0,23], got %d", hour)
	}
	return UpdateSetting(dbConn, KeyDayStartHour, strconv.Itoa(hour))
}

// loadCache initializes the excluded keywords cache backed by the settings table.
func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) ([]string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(value) == "" {
			return nil, nil
		}
		parts := strings.Split(value, ",")
		keywords := make([]string, 0, len(parts))
		for _, kw := range parts {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) > MaxExcludedKeywords {
			keywords = keywords[:MaxExcludedKeywords]
		}
		return keywords, nil
	}
	excludedKeywordsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetchFunc)
}

// GetAgentAPIKey retrieves the agent API key
func GetAgentAPIKey(db *gorm.DB) (string, error) {
	return GetSetting(db, KeyAgentAPIKey)
}

// GetOrCreateAgentAPIKey returns the existing API key or generates a new one
func GetOrCreateAgentAPIKey(db *gorm.DB) (string, error) {
	key, err := GetAgentAPIKey(db)
	if err == nil && key != "" {
		return key, nil
	}
	return GenerateAgentAPIKey(db)
}

// GenerateAgentAPIKey creates a new random API key and stores it
func GenerateAgentAPIKey(db *gorm.DB) (string, error) {
	key := generateRandomToken(32)
	if err := CreateOrUpdateSetting(db, KeyAgentAPIKey, key); err != nil {
		return "", err
	}
	return key, nil
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[randInt(len(charset))]
	}
	return string(b)
}

// randInt returns a cryptographically secure random int in [0, max)
func randInt(max int) int {
	var buf [1]byte
	_, _ = rand.Read(buf[:])
	return int(buf[0]) % max
}
