package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ResultOK: значение метки result для успешных операций.
const ResultOK = "ok"

// OrderMetrics содержит метрики жизненного цикла заказов.
// Методы безопасно вызывать на nil: тогда метрики не пишутся.
type OrderMetrics struct {
	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec

	ordersCreated    *prometheus.CounterVec
	checkoutDuration prometheus.Histogram

	paymentLinks  *prometheus.CounterVec
	compensations *prometheus.CounterVec
	notifications *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для команд в обработке
	inFlight prometheus.Gauge
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в указанном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "vfoody_order_transitions_total",
			Help: "Total number of order transitions grouped by transition and result code",
		}, []string{"transition", "result"}),
		transitionDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "vfoody_order_transition_duration_seconds",
			Help:    "Duration of order transitions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"transition"}),
		ordersCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "vfoody_orders_created_total",
			Help: "Total number of order creation attempts grouped by result code",
		}, []string{"result"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "vfoody_checkout_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		paymentLinks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "vfoody_payment_link_requests_total",
			Help: "Total number of payment link requests grouped by result",
		}, []string{"result"}),
		compensations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "vfoody_payment_link_compensations_total",
			Help: "Total number of payment link cancellations after failed persistence",
		}, []string{"result"}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "vfoody_notifications_total",
			Help: "Total number of notifications grouped by result",
		}, []string{"result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "vfoody_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "vfoody_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "vfoody_order_commands_in_flight",
			Help: "Number of order commands currently being processed",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register(registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register(registerer, opts.Name, prometheus.NewHistogram(opts))
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return register(registerer, opts.Name, prometheus.NewHistogramVec(opts, labels))
}

func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// CommandStarted увеличивает число команд в обработке и возвращает функцию завершения.
func (m *OrderMetrics) CommandStarted() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// RecordTransition записывает результат и длительность перехода.
func (m *OrderMetrics) RecordTransition(transition, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transition, result).Inc()
	m.transitionDuration.WithLabelValues(transition).Observe(duration.Seconds())
}

// RecordOrderCreated записывает результат создания заказа.
func (m *OrderMetrics) RecordOrderCreated(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(result).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordPaymentLink записывает результат запроса ссылки на оплату.
func (m *OrderMetrics) RecordPaymentLink(result string) {
	if m == nil {
		return
	}
	m.paymentLinks.WithLabelValues(result).Inc()
}

// RecordCompensation записывает результат отмены осиротевшей ссылки.
func (m *OrderMetrics) RecordCompensation(result string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(result).Inc()
}

// RecordNotification записывает исход доставки уведомления.
func (m *OrderMetrics) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
