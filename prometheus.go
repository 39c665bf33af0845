package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/Tunes567/Quantum-Hub/smpp"
)

// PrometheusExporter serves a registry on its own listener.
type PrometheusExporter struct {
	Path     string // e.g., "/metrics"
	Listen   string // e.g., ":2550"
	registry *prometheus.Registry
}

func (e *PrometheusExporter) Start() error {
	mux := http.NewServeMux()
	mux.Handle(e.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: e.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return server.ListenAndServe()
}

// Metrics holds the engine's counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	dispatches     *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	admissions     *prometheus.CounterVec
	deliveryEvents *prometheus.CounterVec
	billed         prometheus.Counter
	discrepancies  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_dispatch_total",
			Help: "Dispatch attempts per gateway and result",
		}, []string{"provider", "result"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_dispatch_fallback_total",
			Help: "Dispatches that fell back after the named gateway failed",
		}, []string{"from"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_billing_admission_total",
			Help: "Batch admission decisions",
		}, []string{"result"}),
		deliveryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_delivery_events_total",
			Help: "Inbound deliver_sm notifications",
		}, []string{"kind"}),
		billed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sms_credits_billed_total",
			Help: "Credits debited for successful sends",
		}),
		discrepancies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sms_billing_discrepancies_total",
			Help: "Messages the gateway accepted that could not be charged",
		}),
	}
	m.registry.MustRegister(m.dispatches, m.fallbacks, m.admissions, m.deliveryEvents, m.billed, m.discrepancies)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveDispatch(o DispatchOutcome) {
	if m == nil {
		return
	}
	result := "success"
	if !o.Success {
		result = "failed"
	}
	m.dispatches.WithLabelValues(string(o.Provider), result).Inc()
}

func (m *Metrics) ObserveFallback(from GatewayType) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(string(from)).Inc()
}

func (m *Metrics) ObserveAdmission(result string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveBilled(cost decimal.Decimal) {
	if m == nil {
		return
	}
	m.billed.Add(cost.InexactFloat64())
}

func (m *Metrics) ObserveDiscrepancy() {
	if m == nil {
		return
	}
	m.discrepancies.Inc()
}

func (m *Metrics) ObserveDeliveryEvent(event smpp.DeliveryEvent) {
	if m == nil {
		return
	}
	kind := "inbound"
	if event.Receipt != nil {
		kind = "receipt"
	}
	m.deliveryEvents.WithLabelValues(kind).Inc()
}

// MetricExporter reports ledger state at scrape time.
type MetricExporter struct {
	desc   map[string]*prometheus.Desc
	id     string
	ledger *Ledger
}

func NewMetricExporter(id string, ledger *Ledger) *MetricExporter {
	return &MetricExporter{
		desc: map[string]*prometheus.Desc{
			"pool_balance":  prometheus.NewDesc("sms_system_pool_balance", "Current system pool balance", []string{"server"}, nil),
			"server_status": prometheus.NewDesc("sms_server_status", "1 when the ledger store answers", []string{"server", "service"}, nil),
		},
		id:     id,
		ledger: ledger,
	}
}

func (e *MetricExporter) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range e.desc {
		ch <- desc
	}
}

func (e *MetricExporter) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := 1.0
	balance, err := e.ledger.PoolBalance(ctx)
	if err != nil {
		status = 0
	} else {
		ch <- prometheus.MustNewConstMetric(e.desc["pool_balance"], prometheus.GaugeValue, balance.InexactFloat64(), e.id)
	}
	ch <- prometheus.MustNewConstMetric(e.desc["server_status"], prometheus.GaugeValue, status, e.id, "ledger")
}
