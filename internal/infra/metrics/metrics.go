package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_submissions_total",
		Help: "Фото, поставленные на модерацию",
	}, []string{"duplicate"})
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_decisions_total",
		Help: "Решения администратора по фото",
	}, []string{"action", "result"})
	PlannedPhotosTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planning_photos_total",
		Help: "Фото, добавленные в планы публикаций",
	})
	ScheduledEntriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planning_scheduled_entries_total",
		Help: "Публикации, созданные при финализации планов",
	})
	DispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_dispatch_total",
		Help: "Попытки отложенной публикации",
	}, []string{"status"})
	DispatchTickSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_tick_seconds",
		Help:    "Длительность одного прохода планировщика",
		Buckets: prometheus.DefBuckets,
	})
	PersistenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "state_persistence_failures_total",
		Help: "Ошибки сохранения состояния",
	})
	StateSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "state_table_size",
		Help: "Количество записей в таблицах состояния",
	}, []string{"table"})
	FingerprintCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fingerprint_cache_hits_total",
		Help: "Попадания в кэш отпечатков",
	})
	FingerprintCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fingerprint_cache_misses_total",
		Help: "Промахи кэша отпечатков",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SubmissionsTotal,
		DecisionsTotal,
		PlannedPhotosTotal,
		ScheduledEntriesTotal,
		DispatchTotal,
		DispatchTickSeconds,
		PersistenceFailures,
		StateSize,
		FingerprintCacheHits,
		FingerprintCacheMisses,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// SetStateSizes обновляет размеры таблиц состояния.
func SetStateSizes(hashes, pending, scheduled, sessions int) {
	StateSize.WithLabelValues("hashes").Set(float64(hashes))
	StateSize.WithLabelValues("pending").Set(float64(pending))
	StateSize.WithLabelValues("scheduled").Set(float64(scheduled))
	StateSize.WithLabelValues("sessions").Set(float64(sessions))
}

// IncSubmission учитывает новое фото на модерации.
func IncSubmission(duplicate bool) {
	label := "false"
	if duplicate {
		label = "true"
	}
	SubmissionsTotal.WithLabelValues(label).Inc()
}

// IncDecision учитывает решение администратора.
func IncDecision(action, result string) {
	DecisionsTotal.WithLabelValues(action, result).Inc()
}
