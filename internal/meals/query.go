package meals

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartOfDay returns local midnight of the given instant's calendar day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 local time of the given instant's calendar
// day. Together with StartOfDay this makes both day boundaries inclusive, so
// a meal logged at an exact boundary instant is never dropped.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// MealsForDay returns the meals of one calendar day, most recent first.
func (s *Service) MealsForDay(ctx context.Context, date time.Time) ([]Meal, error) {
	var records []Meal
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", StartOfDay(date), EndOfDay(date)).
		Order("timestamp DESC, id DESC").
		Find(&records).Error
	if err != nil {
		s.logError(opMealsForDay, "query_failed", err, zap.Time("date", date))
		return nil, newServiceError(opMealsForDay, "query_failed", err)
	}
	return records, nil
}

// MealsForRange returns every meal between the start of from's day and the
// end of to's day, both inclusive. No ordering is guaranteed; callers
// re-bucket by day as needed.
func (s *Service) MealsForRange(ctx context.Context, from, to time.Time) ([]Meal, error) {
	var records []Meal
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", StartOfDay(from), EndOfDay(to)).
		Find(&records).Error
	if err != nil {
		s.logError(opMealsForRange, "query_failed", err, zap.Time("from", from), zap.Time("to", to))
		return nil, newServiceError(opMealsForRange, "query_failed", err)
	}
	return records, nil
}

// DailyStats aggregates one day of meals against the configured protein
// goal. GoalProgress is clamped to 1 and reported as 0 for a non-positive
// goal.
func (s *Service) DailyStats(ctx context.Context, date time.Time) (DailyStats, error) {
	records, err := s.MealsForDay(ctx, date)
	if err != nil {
		return DailyStats{}, err
	}

	stats := DailyStats{MealCount: len(records)}
	for _, record := range records {
		stats.TotalProtein += record.ProteinG
		if record.Calories != nil {
			stats.TotalCalories += *record.Calories
		}
	}

	goal := 0
	if s.goals != nil {
		goal, err = s.goals.DailyGoal(ctx)
		if err != nil {
			s.logError(opDailyStats, "goal_lookup_failed", err)
			return DailyStats{}, newServiceError(opDailyStats, "goal_lookup_failed", err)
		}
	}
	if goal > 0 {
		stats.GoalProgress = stats.TotalProtein / float64(goal)
		if stats.GoalProgress > 1 {
			stats.GoalProgress = 1
		}
	}
	return stats, nil
}

// RangeBreakdown returns per-day totals for every calendar day between from
// and to inclusive, including days with no meals. History charts consume
// this directly.
func (s *Service) RangeBreakdown(ctx context.Context, from, to time.Time) ([]DayTotals, error) {
	records, err := s.MealsForRange(ctx, from, to)
	if err != nil {
		return nil, newServiceError(opRangeTotals, "range_query_failed", err)
	}

	byDay := make(map[string]*DayTotals)
	var days []DayTotals
	for day := StartOfDay(from); !day.After(StartOfDay(to)); day = day.AddDate(0, 0, 1) {
		days = append(days, DayTotals{Day: day})
	}
	for i := range days {
		byDay[days[i].Day.Format("2006-01-02")] = &days[i]
	}

	for _, record := range records {
		totals, ok := byDay[record.Timestamp.Format("2006-01-02")]
		if !ok {
			continue
		}
		totals.TotalProtein += record.ProteinG
		if record.Calories != nil {
			totals.TotalCalories += *record.Calories
		}
		totals.MealCount++
	}
	return days, nil
}
