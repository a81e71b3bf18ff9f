package database

import (
	"context"
	"errors"
	"time"

	"lookout/internal/api/dto"
	"lookout/internal/domain"
	"lookout/internal/geo"

	"gorm.io/gorm"
)

const (
	defaultVisitPageSize = 50
	maxVisitPageSize     = 200
)

// TrackVisit upserts the per-IP visit record: the visit counter and last-seen
// timestamp always move, descriptive fields only when the request reports them.
func TrackVisit(ctx context.Context, ip string, data dto.TrackVisitRequest) (*domain.Visit, error) {
	if ip == "" {
		return nil, errors.New("database: track visit requires an ip")
	}

	var visit domain.Visit
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("ip = ?", ip).First(&visit).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			visit = domain.Visit{
				IP:          ip,
				VisitsCount: 1,
				IsBlocked:   false,
				LastVisit:   time.Now(),
			}
			applyVisitFields(&visit, data)
			enrichLocation(&visit)
			return tx.Create(&visit).Error
		}
		if err != nil {
			return err
		}

		visit.VisitsCount++
		visit.LastVisit = time.Now()
		applyVisitFields(&visit, data)
		if visit.Country == "" {
			enrichLocation(&visit)
		}
		return tx.Save(&visit).Error
	})
	if err != nil {
		return nil, err
	}

	return &visit, nil
}

func applyVisitFields(visit *domain.Visit, data dto.TrackVisitRequest) {
	if data.SiteID != "" {
		visit.SiteID = data.SiteID
	}
	if data.PageID != "" {
		visit.PageID = data.PageID
	}
	if data.SocketID != "" {
		visit.SocketID = data.SocketID
	}
	if data.UserAgent != "" {
		visit.UserAgent = data.UserAgent
	}
	if data.Lang != "" {
		visit.Lang = data.Lang
	}
	if data.Timezone != "" {
		visit.Timezone = data.Timezone
	}
	if data.Screen != "" {
		visit.Screen = data.Screen
	}
	if data.Platform != "" {
		visit.Platform = data.Platform
	}
	if data.Referrer != "" {
		visit.Referrer = data.Referrer
	}
	if data.ConnectionType != "" {
		visit.ConnectionType = data.ConnectionType
	}
	if data.Memory > 0 {
		visit.Memory = data.Memory
	}
	if data.Cores > 0 {
		visit.Cores = data.Cores
	}
	if data.MaxTouchPoints > 0 {
		visit.MaxTouchPoints = data.MaxTouchPoints
	}
	if data.Online != nil {
		visit.Online = data.Online
	}
	if data.Secure != nil {
		visit.Secure = data.Secure
	}
	if data.CookieEnabled != nil {
		visit.CookieEnabled = data.CookieEnabled
	}
}

func enrichLocation(visit *domain.Visit) {
	if loc, ok := geo.Resolve(visit.IP); ok {
		visit.Country = loc.Country
		visit.City = loc.City
	}
}

// GetVisitByIP returns nil without error when the IP has never been seen.
func GetVisitByIP(ctx context.Context, ip string) (*domain.Visit, error) {
	if ip == "" {
		return nil, nil
	}

	var visit domain.Visit
	err := DB.WithContext(ctx).Where("ip = ?", ip).First(&visit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

func GetVisitBySocketID(ctx context.Context, socketID string) (*domain.Visit, error) {
	if socketID == "" {
		return nil, nil
	}

	var visit domain.Visit
	err := DB.WithContext(ctx).Where("socket_id = ?", socketID).First(&visit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

// SetBlockStateBySocketID flips the verdict on the record whose last known
// socket matches. Returns the number of rows matched; zero is not an error,
// the operator may be acting on a visitor who already left.
func SetBlockStateBySocketID(ctx context.Context, socketID string, isBlocked bool) (int64, error) {
	if socketID == "" {
		return 0, nil
	}

	res := DB.WithContext(ctx).
		Model(&domain.Visit{}).
		Where("socket_id = ?", socketID).
		Update("is_blocked", isBlocked)
	return res.RowsAffected, res.Error
}

// SetBlockStateByIP flips the verdict for an IP and reports how many records
// matched vs. actually changed, mirroring the bulk-update contract.
func SetBlockStateByIP(ctx context.Context, ip string, isBlocked bool) (dto.BlockResult, error) {
	if ip == "" {
		return dto.BlockResult{}, nil
	}
	return setBlockState(DB.WithContext(ctx).Where("ip = ?", ip), isBlocked)
}

// SetBlockStateAll applies a verdict to every known visit record.
func SetBlockStateAll(ctx context.Context, isBlocked bool) (dto.BlockResult, error) {
	return setBlockState(DB.WithContext(ctx).Where("1 = 1"), isBlocked)
}

func setBlockState(scope *gorm.DB, isBlocked bool) (dto.BlockResult, error) {
	var result dto.BlockResult

	err := scope.Session(&gorm.Session{}).Model(&domain.Visit{}).Count(&result.Matched).Error
	if err != nil {
		return dto.BlockResult{}, err
	}

	res := scope.Session(&gorm.Session{}).
		Model(&domain.Visit{}).
		Where("is_blocked <> ?", isBlocked).
		Update("is_blocked", isBlocked)
	if res.Error != nil {
		return dto.BlockResult{}, res.Error
	}

	result.Modified = res.RowsAffected
	return result, nil
}

func UpdateSocketIDByIP(ctx context.Context, ip, socketID string) error {
	if ip == "" {
		return nil
	}

	return DB.WithContext(ctx).
		Model(&domain.Visit{}).
		Where("ip = ?", ip).
		Updates(map[string]any{"socket_id": socketID, "last_visit": time.Now()}).Error
}

func SaveCookies(ctx context.Context, socketID, cookies string) (int64, error) {
	if socketID == "" {
		return 0, nil
	}

	res := DB.WithContext(ctx).
		Model(&domain.Visit{}).
		Where("socket_id = ?", socketID).
		Update("cookies", cookies)
	return res.RowsAffected, res.Error
}

// PruneStaleVisits deletes unblocked records whose last visit is older than
// the cutoff. Blocked records survive so verdicts outlive visitor absence.
func PruneStaleVisits(ctx context.Context, cutoff time.Time) (int64, error) {
	res := DB.WithContext(ctx).
		Where("last_visit < ? AND is_blocked = ?", cutoff, false).
		Delete(&domain.Visit{})
	return res.RowsAffected, res.Error
}

// ListVisits applies the query filters and returns one page ordered by
// last_visit descending with id as the tie-breaker, plus the cursor for
// the next page when full.
func ListVisits(ctx context.Context, q dto.VisitQuery) ([]domain.Visit, *dto.VisitCursor, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultVisitPageSize
	}
	if limit > maxVisitPageSize {
		limit = maxVisitPageSize
	}

	query := DB.WithContext(ctx).Model(&domain.Visit{})

	if q.IP != "" {
		query = query.Where("ip = ?", q.IP)
	}
	if q.From != nil {
		query = query.Where("last_visit >= ?", *q.From)
	}
	if q.To != nil {
		query = query.Where("last_visit <= ?", *q.To)
	}
	if q.Cursor != nil {
		query = query.Where(
			"last_visit < ? OR (last_visit = ? AND id < ?)",
			q.Cursor.LastVisit, q.Cursor.LastVisit, q.Cursor.ID,
		)
	}
	if q.Q != "" {
		pattern := "%" + q.Q + "%"
		query = query.Where(
			"user_agent LIKE ? OR referrer LIKE ? OR platform LIKE ? OR connection_type LIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}

	var visits []domain.Visit
	if err := query.Order("last_visit DESC, id DESC").Limit(limit).Find(&visits).Error; err != nil {
		return nil, nil, err
	}

	var nextCursor *dto.VisitCursor
	if len(visits) == limit {
		last := visits[len(visits)-1]
		nextCursor = &dto.VisitCursor{LastVisit: last.LastVisit, ID: last.ID}
	}

	return visits, nextCursor, nil
}
