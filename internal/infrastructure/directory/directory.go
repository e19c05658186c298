package directory

import (
	"context"
	"sync"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"

	"go.uber.org/zap"
)

// CoordinatorFactory builds the coordinator for a newly named room.
type CoordinatorFactory func(name domain.RoomName) ports.RoomCoordinator

// Directory maps room names to coordinator instances, populated lazily on
// first connection. Rooms are never evicted here; that belongs to the host.
type Directory struct {
	factory CoordinatorFactory
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger

	mu    sync.RWMutex
	rooms map[domain.RoomName]ports.RoomCoordinator
}

func New(factory CoordinatorFactory, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *Directory {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Directory{
		factory: factory,
		metrics: metrics,
		logger:  logger,
		rooms:   make(map[domain.RoomName]ports.RoomCoordinator),
	}
}

func (d *Directory) GetOrCreate(ctx context.Context, name domain.RoomName) ports.RoomCoordinator {
	d.mu.RLock()
	room, exists := d.rooms[name]
	d.mu.RUnlock()
	if exists {
		return room
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Re-check: another connection may have created it between the locks.
	if room, exists := d.rooms[name]; exists {
		return room
	}

	room = d.factory(name)
	d.rooms[name] = room
	if d.metrics != nil {
		d.metrics.RoomOpened()
	}
	d.logger.Infow("room created", "room", string(name))
	return room
}

func (d *Directory) Get(ctx context.Context, name domain.RoomName) (ports.RoomCoordinator, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	room, exists := d.rooms[name]
	return room, exists
}

func (d *Directory) List(ctx context.Context) []domain.RoomInfo {
	d.mu.RLock()
	rooms := make([]ports.RoomCoordinator, 0, len(d.rooms))
	for _, room := range d.rooms {
		rooms = append(rooms, room)
	}
	d.mu.RUnlock()

	infos := make([]domain.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.Info(ctx))
	}
	return infos
}
