package services

import (
	"context"
	"time"
)

// UsageStats summarizes what the account has processed.
type UsageStats struct {
	TotalImages     int        `json:"totalImages"`
	TotalSize       int64      `json:"totalSize"`
	ImagesThisMonth int        `json:"imagesThisMonth"`
	SizeThisMonth   int64      `json:"sizeThisMonth"`
	LastProcessedAt *time.Time `json:"lastProcessedAt,omitempty"`
}

// QuotaInfo is the account's plan limits and consumption.
type QuotaInfo struct {
	Plan         string    `json:"plan"`
	StorageLimit int64     `json:"storageLimit"`
	MonthlyLimit int       `json:"monthlyLimit"`
	UsedStorage  int64     `json:"usedStorage"`
	UsedMonthly  int       `json:"usedMonthly"`
	ResetDate    time.Time `json:"resetDate"`
}

// RemainingMonthly is the number of images left this period, never negative.
func (q *QuotaInfo) RemainingMonthly() int {
	return max(q.MonthlyLimit-q.UsedMonthly, 0)
}

// StorageRatio is the used fraction of storage, 0 when unlimited.
func (q *QuotaInfo) StorageRatio() float64 {
	if q.StorageLimit <= 0 {
		return 0
	}
	return float64(q.UsedStorage) / float64(q.StorageLimit)
}

type StatsService struct {
	api *APIService
}

func NewStatsService(api *APIService) *StatsService {
	return &StatsService{api: api}
}

func (s *StatsService) Usage(ctx context.Context) (*UsageStats, error) {
	resp, err := s.api.Get(ctx, "/api/stats/usage", nil)
	if err != nil {
		return nil, err
	}

	var out UsageStats
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *StatsService) Quota(ctx context.Context) (*QuotaInfo, error) {
	resp, err := s.api.Get(ctx, "/api/stats/quota", nil)
	if err != nil {
		return nil, err
	}

	var out QuotaInfo
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
