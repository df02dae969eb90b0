// Package monitoring observes the clinic's cache maintenance activity.
//
// The dashboard and appointments services report every background sweep over
// Pub/Sub. This service records those reports in a bounded in-memory history
// and serves per-service sweep statistics: a cache whose sweeps suddenly
// remove large entry counts is being invalidated too slowly, and one that
// never removes anything is carrying dead TTLs.
package monitoring

import (
	"context"
	"errors"

	"encore.dev/pubsub"
	"encore.dev/rlog"

	events "encore.app/pkg/pubsub"
)

//encore:service
type Service struct {
	collector *SweepCollector
}

// Pub/Sub topic carrying sweep reports from the cache-owning services.
var CacheSweptTopic = pubsub.NewTopic[*events.CacheSweptEvent](
	"cache-swept",
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

func initService() (*Service, error) {
	return &Service{collector: NewSweepCollector(nil)}, nil
}

// Global service instance
var svc *Service

func init() {
	svc, _ = initService()
}

// Request and response types

type SweepStatsResponse struct {
	Services map[string]ServiceSweepStats `json:"services"`
	Recorded int                          `json:"recorded"`
}

type ServiceSweepStatsRequest struct {
	Service string `json:"service"`
}

type ServiceSweepStatsResponse struct {
	Stats ServiceSweepStats `json:"stats"`
}

type RecentSweepsRequest struct {
	Limit int `json:"limit"`
}

type RecentSweepsResponse struct {
	Sweeps []events.CacheSweptEvent `json:"sweeps"`
}

// SweepStats returns aggregated sweep statistics for every reporting service.
//
//encore:api public method=GET path=/monitoring/sweeps
func SweepStats(ctx context.Context) (*SweepStatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return &SweepStatsResponse{
		Services: svc.collector.Stats(),
		Recorded: svc.collector.Len(),
	}, nil
}

// ServiceSweeps returns sweep statistics for one service.
//
//encore:api public method=GET path=/monitoring/sweeps/service
func ServiceSweeps(ctx context.Context, req *ServiceSweepStatsRequest) (*ServiceSweepStatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	stats, ok := svc.collector.ServiceStats(req.Service)
	if !ok {
		return nil, errors.New("no sweep reports recorded for service")
	}
	return &ServiceSweepStatsResponse{Stats: stats}, nil
}

// RecentSweeps returns the latest raw sweep reports, newest first.
//
//encore:api public method=GET path=/monitoring/sweeps/recent
func RecentSweeps(ctx context.Context, req *RecentSweepsRequest) (*RecentSweepsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return &RecentSweepsResponse{Sweeps: svc.collector.Recent(req.Limit)}, nil
}

// Subscribe to sweep reports from the cache-owning services.
var _ = pubsub.NewSubscription(
	CacheSweptTopic,
	"monitoring-cache-swept",
	pubsub.SubscriptionConfig[*events.CacheSweptEvent]{
		Handler: HandleCacheSwept,
	},
)

// HandleCacheSwept records one sweep report.
func HandleCacheSwept(ctx context.Context, event *events.CacheSweptEvent) error {
	if svc == nil {
		return nil // Service not initialized yet
	}
	if err := event.Validate(); err != nil {
		// A malformed report is dropped, not retried: redelivery cannot fix it.
		rlog.Warn("dropping malformed sweep report", "error", err)
		return nil
	}
	svc.collector.Record(*event)
	return nil
}
