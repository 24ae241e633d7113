package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cartService "github.com/Alturino/storefront/cart/service"
	"github.com/Alturino/storefront/cart/storage"
	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
	notificationService "github.com/Alturino/storefront/notification/service"
	"github.com/Alturino/storefront/order/repository"
	orderService "github.com/Alturino/storefront/order/service"
	productService "github.com/Alturino/storefront/product/service"
)

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "storefront",
	Subsystem: "session",
	Name:      "active",
	Help:      "Sessions currently held in memory.",
})

// Manager owns every live session. Sessions are built lazily on first use, rehydrating the cart
// from storage, and evicted by Run once idle for longer than the configured ttl.
type Manager struct {
	catalog *productService.CatalogService
	storage storage.Storage
	cache   *redis.Client
	cfg     config.Config

	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(
	catalog *productService.CatalogService,
	storage storage.Storage,
	cache *redis.Client,
	cfg config.Config,
) *Manager {
	return &Manager{
		catalog:  catalog,
		storage:  storage,
		cache:    cache,
		cfg:      cfg,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

// Create starts a new session and returns it with a signed token for it.
func (m *Manager) Create(c context.Context) (*Session, string, error) {
	c, span := Tracer.Start(c, "Manager Create")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager Create").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "generating session id").Logger()
	logger.Info().Msg("generating session id")
	id, err := uuid.NewRandom()
	if err != nil {
		err = fmt.Errorf("failed generating session id with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, "", err
	}
	logger = logger.With().Str(log.KeySessionID, id.String()).Logger()
	logger.Info().Msg("generated session id")

	c = logger.WithContext(c)
	s, err := m.Get(c, id.String())
	if err != nil {
		return nil, "", err
	}

	token, err := IssueToken(c, m.cfg.Session.SecretKey, s.ID, m.now(), m.cfg.Session.TTL)
	if err != nil {
		m.Close(c, s.ID)
		return nil, "", err
	}
	logger.Info().Msg("created session")

	return s, token, nil
}

// Get returns the live session for id, building it when absent.
func (m *Manager) Get(c context.Context, id string) (*Session, error) {
	c, span := Tracer.Start(
		c,
		"Manager Get",
		trace.WithAttributes(attribute.String(log.KeySessionID, id)),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager Get").
		Str(log.KeySessionID, id).
		Logger()

	if s, ok := m.lookup(id); ok {
		return s, nil
	}

	// storage I/O happens outside m.mu
	logger = logger.With().Str(log.KeyProcess, "building session").Logger()
	logger.Info().Msg("building session")
	notifier, err := notificationService.NewNotifier(c, m.cfg.Notification, m.cache, id)
	if err != nil {
		err = fmt.Errorf("failed building notifier with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}

	cart := cartService.NewCartService(m.storage, fmt.Sprintf(constants.KeyCartItems, id))
	if err := cart.Load(c); err != nil {
		err = fmt.Errorf("failed loading cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}

	built := &Session{
		ID:      id,
		Catalog: m.catalog,
		Cart:    cart,
		Orders: orderService.NewOrderService(
			cart,
			repository.NewMemoryOrderRepository(),
			notifier,
			orderService.NewPricing(m.cfg.Checkout),
		),
		Notifier: notifier,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		cart.Close()
		s.touch(m.now())
		logger.Info().Msg("session built concurrently, discarding duplicate")
		return s, nil
	}
	built.touch(m.now())
	m.sessions[id] = built
	activeSessions.Inc()
	logger.Info().Msg("built session")

	return built, nil
}

func (m *Manager) lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// Close drops the in-memory session and closes its cart, so requests still holding it cannot
// overwrite the slot of a later instance. The persisted cart slot is kept so a later Get
// rehydrates it.
func (m *Manager) Close(c context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.Cart.Close()
	delete(m.sessions, id)
	activeSessions.Dec()
	zerolog.Ctx(c).
		Info().
		Str(log.KeyTag, "Manager Close").
		Str(log.KeySessionID, id).
		Msg("closed session")
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the ttl and returns how many were evicted. Evicted
// carts are closed before a later Get can build a new instance for the same slot.
func (m *Manager) Sweep(c context.Context) int {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager Sweep").
		Str(log.KeyProcess, "evicting idle sessions").
		Logger()

	deadline := m.now().Add(-m.cfg.Session.TTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		if s.LastSeen().Before(deadline) {
			s.Cart.Close()
			delete(m.sessions, id)
			activeSessions.Dec()
			evicted++
			logger.Info().Str(log.KeySessionID, id).Msg("evicted idle session")
		}
	}
	return evicted
}

// Run sweeps idle sessions every tick until c is done.
func (m *Manager) Run(c context.Context) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager Run").
		Logger()

	tickEvery := m.cfg.Session.SweepTick
	if tickEvery <= 0 {
		tickEvery = time.Minute
	}
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	logger.Info().Msg("started session sweeper")
	for {
		select {
		case <-c.Done():
			logger.Info().Msg("stopped session sweeper")
			return
		case <-ticker.C:
			if evicted := m.Sweep(c); evicted > 0 {
				logger.Info().Int("evicted", evicted).Msg("swept idle sessions")
			}
		}
	}
}

func (m *Manager) VerifyToken(c context.Context, token string) (string, error) {
	return VerifyToken(c, m.cfg.Session.SecretKey, token)
}
