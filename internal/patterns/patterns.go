// Package patterns mines behavioral transition patterns from the activity
// stream: which activity tends to follow which, at what hour, and how
// strongly. Patterns are cached in a replaceable table and recomputed
// lazily when stale.
package patterns

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"attently/internal/intervals"
	"attently/internal/settings"
)

// transitionSaturationCount is the pair count at which correlation strength
// saturates at 1. A linear ramp, not a statistical correlation; the only
// contract is strength in [0,1] and nondecreasing in count.
const transitionSaturationCount = 10

// patternStaleness is how long a computed pattern set stays fresh.
const patternStaleness = time.Hour

// maxPatterns caps how many patterns a read returns.
const maxPatterns = 50

// BehavioralPattern is one mined transition: activity A tends to be
// followed by activity B.
type BehavioralPattern struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement"`
	FromCategory        string    `gorm:"not null"`
	FromDomain          string    `gorm:"not null"`
	ToCategory          string    `gorm:"not null"`
	ToDomain            string    `gorm:"not null"`
	Frequency           int       `gorm:"not null;default:0"`
	AvgDurationBefore   float64   `gorm:"not null;default:0"`
	CorrelationStrength float64   `gorm:"not null;default:0"`
	DominantHour        int       `gorm:"not null;default:0"`
	ComputedAt          time.Time `gorm:"index;not null"`
	CreatedAt           time.Time
}

// Miner computes and serves behavioral patterns. The clock is injectable so
// staleness can be tested without waiting an hour.
type Miner struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewMiner returns a Miner using the wall clock.
func NewMiner(db *gorm.DB, logger *slog.Logger) *Miner {
	return &Miner{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the miner's clock. Test hook.
func (m *Miner) WithClock(now func() time.Time) *Miner {
	m.now = now
	return m
}

type accumulator struct {
	fromCategory  string
	fromDomain    string
	toCategory    string
	toDomain      string
	count         int
	durationTotal float64
	hours         [24]int
}

// ComputeTransitionPatterns mines consecutive-pair transitions from the
// interval stream over the trailing window and replaces the pattern table
// with the result. Pairs are formed per device so two machines reporting
// concurrently never produce phantom transitions. The clear and reinsert
// happen in one transaction; a concurrent reader sees either the old set
// or the new one, never a partial table.
func (m *Miner) ComputeTransitionPatterns(days int) error {
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	now := m.now()
	from := now.AddDate(0, 0, -days)

	rows, err := intervals.InRange(m.db, "", from, now)
	if err != nil {
		return fmt.Errorf("failed to load intervals for pattern mining: %w", err)
	}

	keywords := settings.GetExcludedKeywords()

	// Intervals arrive ordered by start across all devices; split the
	// stream per device before pairing.
	byDevice := make(map[string][]*intervals.ActivityInterval)
	for i := range rows {
		iv := &rows[i]
		byDevice[iv.DeviceID] = append(byDevice[iv.DeviceID], iv)
	}

	accs := make(map[string]*accumulator)
	for _, stream := range byDevice {
		for i := 1; i < len(stream); i++ {
			prev, cur := stream[i-1], stream[i]
			fromCategory, fromDomain := transitionSide(prev, keywords)
			toCategory, toDomain := transitionSide(cur, keywords)

			key := fromCategory + "|" + fromDomain + ">" + toCategory + "|" + toDomain
			acc, ok := accs[key]
			if !ok {
				acc = &accumulator{
					fromCategory: fromCategory,
					fromDomain:   fromDomain,
					toCategory:   toCategory,
					toDomain:     toDomain,
				}
				accs[key] = acc
			}
			acc.count++
			acc.durationTotal += float64(prev.SecondsActive)
			acc.hours[cur.StartedAt.UTC().Hour()]++
		}
	}

	computed := make([]BehavioralPattern, 0, len(accs))
	for _, acc := range accs {
		computed = append(computed, BehavioralPattern{
			FromCategory:        acc.fromCategory,
			FromDomain:          acc.fromDomain,
			ToCategory:          acc.toCategory,
			ToDomain:            acc.toDomain,
			Frequency:           acc.count,
			AvgDurationBefore:   acc.durationTotal / float64(acc.count),
			CorrelationStrength: CorrelationStrength(acc.count),
			DominantHour:        dominantHour(acc.hours),
			ComputedAt:          now,
			CreatedAt:           now,
		})
	}

	// Stable output order regardless of map iteration.
	sort.Slice(computed, func(i, j int) bool {
		a, b := &computed[i], &computed[j]
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		if a.FromDomain != b.FromDomain {
			return a.FromDomain < b.FromDomain
		}
		return a.ToDomain < b.ToDomain
	})

	err = sqlite.PerformWrite(m.logger, m.db, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM behavioral_patterns").Error; err != nil {
			return fmt.Errorf("failed to clear pattern table: %w", err)
		}
		if len(computed) == 0 {
			return nil
		}
		return tx.CreateInBatches(computed, 200).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace behavioral patterns: %w", err)
	}

	m.logger.Debug("Computed behavioral patterns",
		slog.Int("patterns", len(computed)),
		slog.Int("intervals", len(rows)))

	return nil
}

// GetBehavioralPatterns returns the top patterns by frequency, recomputing
// first when the cached set is missing or older than an hour. Two
// concurrent stale checks may both recompute; each recompute is
// self-contained and transactional, so the race wastes work but cannot
// corrupt the table.
func (m *Miner) GetBehavioralPatterns(days int) ([]BehavioralPattern, error) {
	var freshest sql.NullTime
	err := m.db.Raw("SELECT MAX(computed_at) FROM behavioral_patterns").Scan(&freshest).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check pattern freshness: %w", err)
	}

	if !freshest.Valid || m.now().Sub(freshest.Time) > patternStaleness {
		if err := m.ComputeTransitionPatterns(days); err != nil {
			return nil, err
		}
	}

	var rows []BehavioralPattern
	err = m.db.Order("frequency DESC, from_domain ASC, to_domain ASC").
		Limit(maxPatterns).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load behavioral patterns: %w", err)
	}
	return rows, nil
}

// transitionSide returns the category and domain an interval contributes to
// a transition key. A suppressed domain keeps its transitions but loses its
// identity: the domain is blanked and the category folds to neutral. Unknown
// categories fold to neutral the same way reports treat them.
func transitionSide(iv *intervals.ActivityInterval, keywords []string) (category, domain string) {
	if settings.DomainSuppressed(iv.Domain, keywords) {
		return intervals.CategoryNeutral, ""
	}
	category = iv.Category
	if !intervals.KnownCategory(category) {
		category = intervals.CategoryNeutral
	}
	return category, iv.Domain
}

// CorrelationStrength maps a transition count onto [0,1], saturating at
// transitionSaturationCount.
func CorrelationStrength(count int) float64 {
	if count <= 0 {
		return 0
	}
	if count >= transitionSaturationCount {
		return 1
	}
	return float64(count) / float64(transitionSaturationCount)
}

// dominantHour returns the hour with the highest histogram count; ties go
// to the lowest hour index.
func dominantHour(hours [24]int) int {
	best := 0
	for h := 1; h < 24; h++ {
		if hours[h] > hours[best] {
			best = h
		}
	}
	return best
}
