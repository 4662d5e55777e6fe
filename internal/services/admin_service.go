package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/cache"
	"github.com/monitizeclub/monitize-backend/internal/repo"
)

const tagDashboard = "admin_dashboard"

// AdminService serves platform-wide aggregates to administrators.
type AdminService struct {
	DB *gorm.DB

	dashboard func(context.Context, struct{}) (*repo.Dashboard, error)
}

// NewAdminService wires an AdminService whose dashboard is cached through rc.
func NewAdminService(db *gorm.DB, rc *cache.RequestCache) *AdminService {
	if rc == nil {
		rc = cache.New(0)
	}
	s := &AdminService{DB: db}
	s.dashboard = cache.Wrap(rc, tagDashboard, func(ctx context.Context, _ struct{}) (*repo.Dashboard, error) {
		return repo.DashboardStats(ctx, s.DB)
	})
	return s
}

// Dashboard returns the aggregates if userID is an administrator.
func (s *AdminService) Dashboard(ctx context.Context, userID string) (*repo.Dashboard, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	ok, err := repo.IsAdmin(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return s.dashboard(ctx, struct{}{})
}
