package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retailpos/internal/cache"
	"retailpos/internal/domain"
	"retailpos/internal/store"
)

const chartDays = 7

// DailyReport returns the aggregate for one calendar day in the report
// location. An empty date means today. Days without sales report zeros.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.DailyReport{}, err
	}

	day := s.localMidnight(s.now())
	if date = strings.TrimSpace(date); date != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, date, s.loc)
		if err != nil {
			return domain.DailyReport{}, invalidf("date must be YYYY-MM-DD")
		}
		day = parsed
	}
	return s.loadDailyReport(ctx, day)
}

func (s *Service) loadDailyReport(ctx context.Context, day time.Time) (domain.DailyReport, error) {
	key := cache.ReportKey(day)
	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("read daily report cache", zap.String("key", key), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	// The shared load outlives any single caller; each caller still gives
	// up on its own context.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.reports.DoChan(key, func() (any, error) {
		report, err := s.repo.GetDailyReport(loadCtx, day)
		switch {
		case errors.Is(err, store.ErrNotFound):
			report = emptyReport(day)
		case err != nil:
			return nil, err
		}
		// A sale committing between the read above and this write leaves a
		// stale entry behind its own Delete. The TTL bounds that staleness.
		if err := s.cache.Set(loadCtx, key, report, s.cacheTTL); err != nil {
			s.logger.Warn("write daily report cache", zap.String("key", key), zap.Error(err))
		}
		return report, nil
	})

	select {
	case <-ctx.Done():
		return domain.DailyReport{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.DailyReport{}, res.Err
		}
		return *res.Val.(*domain.DailyReport), nil
	}
}

func emptyReport(day time.Time) *domain.DailyReport {
	return &domain.DailyReport{
		Date:             day,
		TotalSales:       decimal.Zero,
		TotalProfit:      decimal.Zero,
		TotalTax:         decimal.Zero,
		TotalDiscount:    decimal.Zero,
		PaymentBreakdown: map[domain.PaymentMethod]decimal.Decimal{},
	}
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.DashboardStats{}, err
	}
	today, err := s.loadDailyReport(ctx, s.localMidnight(s.now()))
	if err != nil {
		return domain.DashboardStats{}, err
	}
	lowStock, err := s.repo.CountLowStock(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	return domain.DashboardStats{Today: today, LowStockCount: lowStock}, nil
}

// SalesChart covers the last seven days ending today, oldest first, with
// zero points for days without sales.
func (s *Service) SalesChart(ctx context.Context) ([]domain.SalesChartPoint, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	to := s.localMidnight(s.now())
	from := to.AddDate(0, 0, -(chartDays - 1))

	reports, err := s.repo.ListDailyReports(ctx, from, to)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]domain.DailyReport, len(reports))
	for _, r := range reports {
		byDay[r.Date.In(s.loc).Format(time.DateOnly)] = r
	}

	points := make([]domain.SalesChartPoint, 0, chartDays)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := day.Format(time.DateOnly)
		point := domain.SalesChartPoint{Date: key, TotalSales: decimal.Zero}
		if r, ok := byDay[key]; ok {
			point.TotalSales = r.TotalSales
			point.OrderCount = r.OrderCount
		}
		points = append(points, point)
	}
	return points, nil
}
