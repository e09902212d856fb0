package service

import (
	"context"
	"errors"
	"time"

	"pulsehub/internal/model"
	"pulsehub/internal/repository"
	"pulsehub/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

// Reconciler periodically brings this instance's catalog rows in line with
// the hub: rows lost to skipped writes are inserted and topic states that
// changed since registration are updated. Instances sharing a database take
// turns through an etcd lock.
type Reconciler struct {
	etcdClient *clientv3.Client
	hub        *Hub
	catalog    repository.CatalogInterface
	instance   string
	interval   time.Duration
}

func NewReconciler(client *clientv3.Client, hub *Hub, catalog repository.CatalogInterface, instance string, interval time.Duration) *Reconciler {
	return &Reconciler{
		etcdClient: client,
		hub:        hub,
		catalog:    catalog,
		instance:   instance,
		interval:   interval,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Session for distributed lock, tightly coupled with a lease
	session, err := concurrency.NewSession(r.etcdClient, concurrency.WithTTL(10))
	if err != nil {
		logger.Error("failed to create etcd concurrency session", zap.Error(err))
		return
	}
	defer session.Close()

	mutex := concurrency.NewMutex(session, "/pulsehub/locks/catalog")

	logger.Info("reconciler started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := mutex.Lock(lockCtx)
			cancel()

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					logger.Debug("reconciliation skipped, another instance holds the lock")
				} else {
					logger.Error("failed to acquire reconciliation lock", zap.Error(err))
				}
				continue
			}

			r.Reconcile(ctx)

			if err := mutex.Unlock(context.Background()); err != nil {
				logger.Warn("failed to release reconciliation lock", zap.Error(err))
			}
		}
	}
}

// Reconcile runs one pass and returns how many rows it wrote.
func (r *Reconciler) Reconcile(ctx context.Context) int {
	rows, err := r.catalog.ListByInstance(ctx, r.instance)
	if err != nil {
		logger.Error("recon: failed to fetch catalog", zap.Error(err))
		return 0
	}
	stored := make(map[string]model.TopicRecord, len(rows))
	for _, row := range rows {
		stored[row.TopicID] = row
	}

	fixed := 0
	topics := r.hub.Topics()
	for _, info := range topics {
		id := info.Key.ID.String()
		row, exists := stored[id]

		reason := ""
		switch {
		case !exists:
			reason = "missing_in_catalog"
		case row.State != info.State:
			reason = "state_changed"
		default:
			continue
		}

		logger.Debug("recon: fixing catalog row", zap.String("id", id), zap.String("label", info.Key.Label), zap.String("reason", reason))
		rec := &model.TopicRecord{
			TopicID:  id,
			Label:    info.Key.Label,
			Kind:     string(info.Meta.Reportable),
			Units:    string(info.Meta.Units),
			Instance: r.instance,
			State:    info.State,
		}
		if err := r.catalog.Upsert(ctx, rec); err != nil {
			logger.Error("recon: failed to fix catalog row", zap.String("id", id), zap.Error(err))
			continue
		}
		fixed++
	}

	logger.Info("reconciliation finished", zap.Int("topics", len(topics)), zap.Int("rows", len(rows)), zap.Int("fixed", fixed))
	return fixed
}
