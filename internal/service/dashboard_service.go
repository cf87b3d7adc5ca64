package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

const busiestInvigilatorLimit = 5

type dashboardRoomCounter interface {
	Count(ctx context.Context) (int, error)
}

type dashboardDepartmentCounter interface {
	Count(ctx context.Context) (int, error)
}

type dashboardInvigilatorReader interface {
	CountActive(ctx context.Context) (int, error)
	Workload(ctx context.Context, from models.Date, limit int) ([]models.InvigilatorWorkload, error)
}

type dashboardExamCounter interface {
	CountOn(ctx context.Context, date models.Date) (int, error)
	CountAfter(ctx context.Context, date models.Date) (int, error)
}

// DashboardServiceConfig controls caching behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardServiceParams wires dependencies for the dashboard service.
type DashboardServiceParams struct {
	Rooms        dashboardRoomCounter
	Departments  dashboardDepartmentCounter
	Invigilators dashboardInvigilatorReader
	Exams        dashboardExamCounter
	Cache        *CacheService
	Config       DashboardServiceConfig
	Logger       *zap.Logger
}

// DashboardService composes the admin landing page counters.
type DashboardService struct {
	rooms        dashboardRoomCounter
	departments  dashboardDepartmentCounter
	invigilators dashboardInvigilatorReader
	exams        dashboardExamCounter
	cache        *CacheService
	cfg          DashboardServiceConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &DashboardService{
		rooms:        params.Rooms,
		departments:  params.Departments,
		invigilators: params.Invigilators,
		exams:        params.Exams,
		cache:        params.Cache,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// Summary returns the dashboard counters and whether they came from cache.
func (s *DashboardService) Summary(ctx context.Context) (*models.DashboardSummary, bool, error) {
	if summary, hit, err := s.tryCache(ctx); err != nil {
		return nil, false, err
	} else if hit {
		return summary, true, nil
	}

	summary, err := s.compose(ctx)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, summary)
	return summary, false, nil
}

// Invalidate drops cached dashboard and workload entries after schedule mutations.
func (s *DashboardService) Invalidate(ctx context.Context) {
	s.cache.InvalidateSchedule(ctx)
}

func (s *DashboardService) tryCache(ctx context.Context) (*models.DashboardSummary, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	var cached models.DashboardSummary
	hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached)
	if err != nil {
		return nil, false, err
	}
	if hit {
		return &cached, true, nil
	}
	return nil, false, nil
}

func (s *DashboardService) persistCache(ctx context.Context, summary *models.DashboardSummary) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, dashboardCacheKey, summary, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", dashboardCacheKey), zap.Error(err))
	}
}

func (s *DashboardService) compose(ctx context.Context) (*models.DashboardSummary, error) {
	now := s.now()
	today := models.DateOf(now)

	rooms, err := s.rooms.Count(ctx)
	if err != nil {
		return nil, s.loadFailure(err, "count rooms")
	}
	departments, err := s.departments.Count(ctx)
	if err != nil {
		return nil, s.loadFailure(err, "count departments")
	}
	active, err := s.invigilators.CountActive(ctx)
	if err != nil {
		return nil, s.loadFailure(err, "count active invigilators")
	}
	examsToday, err := s.exams.CountOn(ctx, today)
	if err != nil {
		return nil, s.loadFailure(err, "count exams today")
	}
	upcoming, err := s.exams.CountAfter(ctx, today)
	if err != nil {
		return nil, s.loadFailure(err, "count upcoming exams")
	}
	busiest, err := s.invigilators.Workload(ctx, today, busiestInvigilatorLimit)
	if err != nil {
		return nil, s.loadFailure(err, "load busiest invigilators")
	}
	if busiest == nil {
		busiest = []models.InvigilatorWorkload{}
	}

	return &models.DashboardSummary{
		TotalRooms:         rooms,
		ActiveInvigilators: active,
		TotalDepartments:   departments,
		ExamsToday:         examsToday,
		UpcomingExams:      upcoming,
		BusiestInvigilator: busiest,
		GeneratedAt:        now.UTC(),
	}, nil
}

func (s *DashboardService) loadFailure(err error, op string) error {
	s.logger.Warn("dashboard load failed", zap.String("op", op), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard")
}
