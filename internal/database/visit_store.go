package database

import (
	"context"

	"lookout/internal/api/dto"
)

// VisitStore adapts the visit handlers to the contract the gateway
// consumes. Methods are thin; all query logic lives with the handlers.
type VisitStore struct{}

func NewVisitStore() VisitStore {
	return VisitStore{}
}

func (VisitStore) RecordVisit(ctx context.Context, ip, socketID, siteID string) error {
	_, err := TrackVisit(ctx, ip, dto.TrackVisitRequest{SocketID: socketID, SiteID: siteID})
	return err
}

func (VisitStore) GetBlockVerdict(ctx context.Context, ip string) (bool, error) {
	visit, err := GetVisitByIP(ctx, ip)
	if err != nil {
		return false, err
	}
	return visit != nil && visit.IsBlocked, nil
}

func (VisitStore) SetBlockBySocketID(ctx context.Context, socketID string, blocked bool) (int64, error) {
	return SetBlockStateBySocketID(ctx, socketID, blocked)
}

func (VisitStore) SetBlockByIP(ctx context.Context, ip string, blocked bool) (int64, int64, error) {
	result, err := SetBlockStateByIP(ctx, ip, blocked)
	return result.Matched, result.Modified, err
}
