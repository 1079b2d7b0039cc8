package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics observabilidad del motor DTE: folios, firmas y llamadas al SII.
// Un *Metrics nil es válido y no registra nada.
type Metrics struct {
	// Folios emitidos y devueltos por tipo de documento
	FoliosIssued   *prometheus.CounterVec
	FoliosReturned *prometheus.CounterVec

	// Firmas por tipo de artefacto (documento, sobre, semilla) y resultado
	Signatures *prometheus.CounterVec

	// Llamadas al SII por operación y resultado
	GatewayCalls   *prometheus.CounterVec
	GatewayLatency *prometheus.HistogramVec

	// Envíos por estado final
	Shipments *prometheus.CounterVec
}

// NewWithRegistry registra las métricas en reg. Los comandos usan un registro
// propio que se envía al Pushgateway al terminar.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FoliosIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dte_folios_issued_total",
			Help: "Folios consumed by document type",
		}, []string{"doc_type"}),

		FoliosReturned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dte_folios_returned_total",
			Help: "Folios returned after a failed issuance by document type",
		}, []string{"doc_type"}),

		Signatures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dte_signatures_total",
			Help: "XML signatures by artifact and result",
		}, []string{"artifact", "result"}), // artifact: "document", "docset", "folio_usage", "seed"

		GatewayCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dte_gateway_calls_total",
			Help: "SII web service calls by operation and result",
		}, []string{"op", "result"}),

		GatewayLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dte_gateway_call_duration_seconds",
			Help:    "Duration of SII web service calls by operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),

		Shipments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dte_shipments_total",
			Help: "Shipments by status",
		}, []string{"status"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// IncFolioIssued registra un folio consumido.
func (m *Metrics) IncFolioIssued(docType string) {
	if m != nil {
		m.FoliosIssued.WithLabelValues(docType).Inc()
	}
}

// IncFolioReturned registra un folio devuelto.
func (m *Metrics) IncFolioReturned(docType string) {
	if m != nil {
		m.FoliosReturned.WithLabelValues(docType).Inc()
	}
}

// ObserveSignature registra una firma y su resultado.
func (m *Metrics) ObserveSignature(artifact string, err error) {
	if m != nil {
		m.Signatures.WithLabelValues(artifact, result(err)).Inc()
	}
}

// ObserveGatewayCall registra una llamada al SII con su duración.
func (m *Metrics) ObserveGatewayCall(op string, d time.Duration, err error) {
	if m != nil {
		m.GatewayCalls.WithLabelValues(op, result(err)).Inc()
		m.GatewayLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

// IncShipment registra un envío en el estado dado.
func (m *Metrics) IncShipment(status string) {
	if m != nil {
		m.Shipments.WithLabelValues(status).Inc()
	}
}
