package httpserver

import (
	"context"
	"time"

	"github.com/architeacher/amqp-topology/internal/domain"
	"github.com/architeacher/amqp-topology/internal/infrastructure"
	"github.com/architeacher/amqp-topology/pkg/topology"
)

// Checker implements DependencyChecker against the demo services' two real
// dependencies: the outbox's Postgres pool and a topology.Connection.
type Checker struct {
	storage *infrastructure.Storage
	conn    *topology.Connection
}

func NewChecker(storage *infrastructure.Storage, conn *topology.Connection) *Checker {
	return &Checker{storage: storage, conn: conn}
}

func (c *Checker) CheckStorage(ctx context.Context) domain.DependencyStatus {
	start := time.Now()

	db, err := c.storage.GetDB()
	if err != nil {
		return domain.DependencyStatus{
			Status:      domain.DependencyCheckStatusUnhealthy,
			LastChecked: start,
			Error:       err.Error(),
		}
	}

	if err := db.PingContext(ctx); err != nil {
		return domain.DependencyStatus{
			Status:       domain.DependencyCheckStatusUnhealthy,
			ResponseTime: float32(time.Since(start).Seconds()),
			LastChecked:  start,
			Error:        err.Error(),
		}
	}

	return domain.DependencyStatus{
		Status:       domain.DependencyCheckStatusHealthy,
		ResponseTime: float32(time.Since(start).Seconds()),
		LastChecked:  start,
	}
}

// CheckQueue reports healthy only once the connection's current incarnation
// has finished rebuilding; a rebuild in flight reads as degraded rather than
// unhealthy since it is expected to self-heal per the reconnect loop.
func (c *Checker) CheckQueue(_ context.Context) domain.DependencyStatus {
	now := time.Now()

	select {
	case <-c.conn.Initialized():
		return domain.DependencyStatus{
			Status:      domain.DependencyCheckStatusHealthy,
			LastChecked: now,
		}
	default:
		return domain.DependencyStatus{
			Status:      domain.DependencyCheckStatusDegraded,
			LastChecked: now,
			Error:       "topology connection is rebuilding",
		}
	}
}
