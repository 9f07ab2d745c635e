// Package insights serves the read models: per-document extraction views
// and the per-patient daily overview. Both are cached briefly in redis;
// cache keys are scoped by patient or document so entries never cross
// patients.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medichat/platform/pkg/common/logger"
	"github.com/medichat/platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

type DocumentSource interface {
	Get(ctx context.Context, documentID uuid.UUID) (models.Document, error)
	List(ctx context.Context, patientUserID uuid.UUID, limit int) ([]models.Document, error)
}

type ExtractionSource interface {
	LatestExtraction(ctx context.Context, documentID uuid.UUID) (*models.Extraction, error)
}

type RecordSource interface {
	ListByDocument(ctx context.Context, documentID uuid.UUID) (models.CreatedRecords, error)
	Counts(ctx context.Context, patientUserID uuid.UUID) (models.InsightCounts, error)
}

type DashboardSource interface {
	Current(ctx context.Context, patientUserID uuid.UUID, date string) (*models.DailyDashboard, error)
	Today() string
}

// Cache is the small read-through cache contract. Misses are reported as
// (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

// NoopCache disables caching, for tests and cacheless deployments.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) ([]byte, error)            { return nil, nil }
func (NoopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {}

const overviewDocumentLimit = 10

type Service struct {
	documents   DocumentSource
	extractions ExtractionSource
	records     RecordSource
	dashboards  DashboardSource
	cache       Cache
	cacheTTL    time.Duration
}

func NewService(documents DocumentSource, extractions ExtractionSource, records RecordSource, dashboards DashboardSource, cache Cache, cacheTTL time.Duration) *Service {
	return &Service{
		documents:   documents,
		extractions: extractions,
		records:     records,
		dashboards:  dashboards,
		cache:       cache,
		cacheTTL:    cacheTTL,
	}
}

// DocumentInsights assembles the per-document view: the document, its
// latest extraction, and the records it produced. Unparsed documents get a
// view with a nil extraction and empty records.
func (s *Service) DocumentInsights(ctx context.Context, documentID uuid.UUID) (models.DocumentInsights, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return models.DocumentInsights{}, err
	}

	cacheKey := "insights:document:" + documentID.String()
	if doc.Status == models.DocumentStatusParsed {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			var view models.DocumentInsights
			if err := json.Unmarshal(cached, &view); err == nil {
				return view, nil
			}
		}
	}

	ext, err := s.extractions.LatestExtraction(ctx, documentID)
	if err != nil {
		return models.DocumentInsights{}, err
	}
	created, err := s.records.ListByDocument(ctx, documentID)
	if err != nil {
		return models.DocumentInsights{}, err
	}

	view := models.DocumentInsights{
		Document:                doc,
		Extraction:              ext,
		Created:                 created,
		Counts:                  countCreated(created),
		HistoryOfPresentIllness: extractionHPI(ext),
	}

	if doc.Status == models.DocumentStatusParsed {
		if data, err := json.Marshal(view); err == nil {
			s.cache.Set(ctx, cacheKey, data, s.cacheTTL)
		}
	}
	return view, nil
}

// PatientOverview assembles the daily overview: the current dashboard (nil
// when none has been generated today), recent documents, and record counts.
func (s *Service) PatientOverview(ctx context.Context, patientUserID uuid.UUID) (models.PatientOverview, error) {
	date := s.dashboards.Today()
	cacheKey := "insights:overview:" + patientUserID.String() + ":" + date

	if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
		var view models.PatientOverview
		if err := json.Unmarshal(cached, &view); err == nil {
			return view, nil
		}
	}

	d, err := s.dashboards.Current(ctx, patientUserID, date)
	if err != nil {
		return models.PatientOverview{}, err
	}
	docs, err := s.documents.List(ctx, patientUserID, overviewDocumentLimit)
	if err != nil {
		return models.PatientOverview{}, err
	}
	counts, err := s.records.Counts(ctx, patientUserID)
	if err != nil {
		return models.PatientOverview{}, err
	}

	view := models.PatientOverview{
		PatientUserID:   patientUserID,
		Date:            date,
		Dashboard:       d,
		RecentDocuments: docs,
		Counts:          counts,
	}

	if data, err := json.Marshal(view); err == nil {
		s.cache.Set(ctx, cacheKey, data, s.cacheTTL)
	}
	return view, nil
}

// extractionHPI pulls hpi.historyOfPresentIllness out of the raw extraction
// payload. It is surfaced read-only; the profile stays caller-owned.
func extractionHPI(ext *models.Extraction) *string {
	if ext == nil {
		return nil
	}
	var payload struct {
		HPI struct {
			HistoryOfPresentIllness string `json:"historyOfPresentIllness"`
		} `json:"hpi"`
	}
	if err := json.Unmarshal(ext.ExtractedJSON, &payload); err != nil {
		return nil
	}
	if payload.HPI.HistoryOfPresentIllness == "" {
		return nil
	}
	return &payload.HPI.HistoryOfPresentIllness
}

func countCreated(created models.CreatedRecords) models.InsightCounts {
	counts := models.InsightCounts{
		Vitals:      len(created.Vitals),
		Labs:        len(created.Labs),
		Medications: len(created.Medications),
		Conditions:  len(created.Conditions),
	}
	for _, lab := range created.Labs {
		if lab.Flag != nil && *lab.Flag != "" {
			counts.FlaggedLabs++
		}
	}
	return counts
}
