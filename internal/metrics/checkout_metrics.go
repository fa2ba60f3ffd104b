package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики оформления заказа.
// Все методы безопасны для nil-получателя: оркестратор может работать без метрик.
type CheckoutMetrics struct {
	initiated   prometheus.Counter
	finalized   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	transitions *prometheus.CounterVec

	// Отдельные счётчики для событий, на которые должен реагировать дежурный.
	signatureMismatch   prometheus.Counter
	ownerMismatch       prometheus.Counter
	paymentOrderMissing prometheus.Counter
	amountMismatch      *prometheus.CounterVec

	stepDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge
}

// NewCheckoutMetrics регистрирует метрики в глобальном реестре.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		initiated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_initiated_total",
			Help: "Total number of payment intents created",
		}),
		finalized: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_finalized_total",
			Help: "Total number of verify calls that ended with a recorded order",
		}, []string{"replayed"}),
		failed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_failed_total",
			Help: "Total number of checkout attempts that ended in FAILED, by error kind",
		}, []string{"phase", "kind"}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_state_transitions_total",
			Help: "Checkout state machine transitions",
		}, []string{"from", "to"}),
		signatureMismatch: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_signature_mismatch_total",
			Help: "Payment callbacks rejected because of an invalid signature (security event)",
		}),
		ownerMismatch: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_intent_owner_mismatch_total",
			Help: "Payment callbacks for an intent created by another user (security event)",
		}),
		paymentOrderMissing: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_payment_recorded_order_missing_total",
			Help: "Payments captured by the gateway without a recorded order; requires reconciliation",
		}),
		amountMismatch: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_amount_mismatch_total",
			Help: "Recomputed cart total differed from the quoted intent amount",
		}, []string{"policy"}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"step"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_in_flight",
			Help: "Number of checkout requests currently being processed",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordInitiated увеличивает счётчик созданных намерений.
func (m *CheckoutMetrics) RecordInitiated() {
	if m == nil {
		return
	}
	m.initiated.Inc()
}

// RecordFinalized увеличивает счётчик записанных заказов; replayed — ответ из уже существующего заказа.
func (m *CheckoutMetrics) RecordFinalized(replayed bool) {
	if m == nil {
		return
	}
	label := "false"
	if replayed {
		label = "true"
	}
	m.finalized.WithLabelValues(label).Inc()
}

// RecordFailed учитывает неудачную попытку в разрезе фазы и кода ошибки.
func (m *CheckoutMetrics) RecordFailed(phase, kind string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(phase, kind).Inc()
}

// RecordTransition учитывает переход автомата состояний.
func (m *CheckoutMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordSignatureMismatch учитывает отклонённый по подписи callback.
func (m *CheckoutMetrics) RecordSignatureMismatch() {
	if m == nil {
		return
	}
	m.signatureMismatch.Inc()
}

// RecordOwnerMismatch учитывает callback на чужое намерение.
func (m *CheckoutMetrics) RecordOwnerMismatch() {
	if m == nil {
		return
	}
	m.ownerMismatch.Inc()
}

// RecordPaymentRecordedOrderMissing учитывает списание без записанного заказа.
func (m *CheckoutMetrics) RecordPaymentRecordedOrderMissing() {
	if m == nil {
		return
	}
	m.paymentOrderMissing.Inc()
}

// RecordAmountMismatch учитывает расхождение суммы с указанием применённой политики.
func (m *CheckoutMetrics) RecordAmountMismatch(policy string) {
	if m == nil {
		return
	}
	m.amountMismatch.WithLabelValues(policy).Inc()
}

// RecordStepDuration записывает время выполнения шага.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// InFlightStarted увеличивает число обрабатываемых запросов.
func (m *CheckoutMetrics) InFlightStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// InFlightFinished уменьшает число обрабатываемых запросов.
func (m *CheckoutMetrics) InFlightFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
