package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 3 * time.Second

// Status: состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check: результат проверки одного компонента.
type Check struct {
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	Critical   bool           `json:"critical"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// Response: тело ответа /healthz.
type Response struct {
	Service       string           `json:"service"`
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет компонент в пределах контекста запроса.
type Checker interface {
	Check(ctx context.Context) Check
}

type registration struct {
	checker  Checker
	critical bool
}

// Handler собирает проверки компонентов заказа: хранилище, outbox.
// Отказ критичного компонента делает сервис unhealthy и снимает готовность,
// отказ некритичного только понижает статус до degraded.
type Handler struct {
	mu        sync.Mutex
	checkers  map[string]registration
	last      map[string]Status
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    *log.Entry
}

// NewHandler создаёт обработчик; logger может быть nil.
func NewHandler(version string, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "health")
	}
	return &Handler{
		checkers:  make(map[string]registration),
		last:      make(map[string]Status),
		version:   version,
		startTime: time.Now(),
		timeout:   defaultCheckTimeout,
		logger:    logger,
	}
}

// Register добавляет проверку. critical определяет, влияет ли отказ на /readyz.
func (h *Handler) Register(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = registration{checker: checker, critical: critical}
}

// Run выполняет все проверки параллельно и возвращает агрегированный статус.
func (h *Handler) Run(ctx context.Context) Response {
	h.mu.Lock()
	names := make([]string, 0, len(h.checkers))
	regs := make([]registration, 0, len(h.checkers))
	for name, reg := range h.checkers {
		names = append(names, name)
		regs = append(regs, reg)
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]Check, len(regs))
	var g errgroup.Group
	for i, reg := range regs {
		g.Go(func() error {
			check := reg.checker.Check(ctx)
			check.Critical = reg.critical
			if check.Name == "" {
				check.Name = names[i]
			}
			results[i] = check
			return nil
		})
	}
	_ = g.Wait()

	resp := Response{
		Service:       "vfoody-order-service",
		Status:        StatusHealthy,
		Timestamp:     time.Now().UTC(),
		Checks:        make(map[string]Check, len(results)),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	for i, check := range results {
		resp.Checks[names[i]] = check
		resp.Status = worse(resp.Status, effectiveStatus(check))
	}
	h.logChanges(resp.Checks)
	return resp
}

// Ready сообщает, что ни один критичный компонент не отказал.
func (r Response) Ready() bool {
	for _, check := range r.Checks {
		if check.Critical && check.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Run(r.Context())

	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// LivenessHandler: процесс жив, зависимости не проверяются.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler снимает готовность только при отказе критичных компонентов.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.Run(r.Context()).Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *Handler) logChanges(checks map[string]Check) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range names {
		check := checks[name]
		prev, seen := h.last[name]
		h.last[name] = check.Status
		if prev == check.Status || (!seen && check.Status == StatusHealthy) {
			continue
		}
		entry := h.logger.WithFields(log.Fields{
			"check":    name,
			"status":   check.Status,
			"critical": check.Critical,
		})
		if check.Status == StatusHealthy {
			entry.Info("component recovered")
			continue
		}
		entry.WithField("message", check.Message).Warn("component check failed")
	}
}

func effectiveStatus(check Check) Status {
	if check.Status == StatusUnhealthy && !check.Critical {
		return StatusDegraded
	}
	return check.Status
}

func worse(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusUnhealthy:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
