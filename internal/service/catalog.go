package service

import (
	"context"
	"errors"
	"time"

	"pulsehub/internal/dto/resp"
	"pulsehub/internal/executor"
	"pulsehub/internal/model"
	"pulsehub/internal/repository"
	"pulsehub/pkg/logger"

	"go.uber.org/zap"
)

var ErrEtcdUnhealthy = errors.New("etcd unhealthy")
var ErrMysqlUnhealthy = errors.New("mysql unhealthy")

// CatalogService records every topic this instance registers. Writes happen
// off the registering goroutine and are best effort.
type CatalogService struct {
	repo     repository.CatalogInterface
	io       *executor.Elastic
	instance string
	timeout  time.Duration
}

func NewCatalogService(repo repository.CatalogInterface, io *executor.Elastic, instance string) *CatalogService {
	return &CatalogService{
		repo:     repo,
		io:       io,
		instance: instance,
		timeout:  3 * time.Second,
	}
}

func (s *CatalogService) record(info TopicInfo) *model.TopicRecord {
	return &model.TopicRecord{
		TopicID:  info.Key.ID.String(),
		Label:    info.Key.Label,
		Kind:     string(info.Meta.Reportable),
		Units:    string(info.Meta.Units),
		Instance: s.instance,
		State:    info.State,
	}
}

// Hook is meant for WithRegistrationHook.
func (s *CatalogService) Hook(info TopicInfo) {
	rec := s.record(info)
	err := s.io.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.repo.Upsert(ctx, rec); err != nil {
			logger.Warn("failed to record topic", zap.String("label", rec.Label), zap.String("id", rec.TopicID), zap.Error(err))
		}
	})
	if err != nil {
		logger.Debug("catalog write skipped", zap.String("label", rec.Label), zap.Error(err))
	}
}

func (s *CatalogService) List(ctx context.Context, prefix, instance string, page, pageSize int) (*resp.CatalogResponse, error) {
	recs, total, err := s.repo.List(ctx, prefix, instance, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	items := make([]resp.CatalogItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, resp.CatalogItem{
			ID:        r.ID,
			TopicID:   r.TopicID,
			Label:     r.Label,
			Kind:      r.Kind,
			Units:     r.Units,
			Instance:  r.Instance,
			State:     r.State,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return &resp.CatalogResponse{Data: items, Total: total}, nil
}

func (s *CatalogService) Health(ctx context.Context) error {
	if s.repo.PingContext(ctx) != nil {
		return ErrMysqlUnhealthy
	}
	return nil
}
