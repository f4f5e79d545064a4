package consensus

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "reimint"
const metricsSubsystem = "consensus"

// Metrics bundles the gauges/counters the State reports, grounded on the
// cometbft's internal/consensus/metrics.go convention (inferred from the
// cs.metrics.* call sites in state.go, since metrics.go itself was not
// present in the retrieved pack).
type Metrics struct {
	Height metrics.Gauge
	Round  metrics.Gauge
	Step   metrics.Gauge

	Rounds metrics.Gauge

	Votes       metrics.Counter
	LateVotes   metrics.Counter
	Proposals   metrics.Counter

	BlockIntervalSeconds metrics.Histogram
	NumTxs               metrics.Gauge

	EvidenceReported metrics.Counter
}

// PrometheusMetrics constructs a Metrics backed by a prometheus
// registry, the way cometbft wires go-kit/kit/metrics/prometheus
// adapters throughout its *.Metrics constructors.
func PrometheusMetrics(labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Height: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: "height",
			Help: "Height of the chain.",
		}, labels),
		Round: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: "round",
			Help: "Round of the current height.",
		}, labels),
		Step: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: "step",
			Help: "RoundStepType of the current round, as an integer.",
		}, labels),
		Rounds: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: "rounds",
			Help: "Number of rounds taken to commit the last block.",
		}, labels),
		Votes: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: "votes_total",
			Help: "Number of votes successfully added to a VoteSet.",
		}, labels),
		LateVotes: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: "late_votes_total",
			Help: "Number of votes received for an already-decided (height, round).",
		}, labels),
		Proposals: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: "proposals_total",
			Help: "Number of proposals accepted.",
		}, labels),
		BlockIntervalSeconds: kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: "block_interval_seconds",
			Help: "Time between this and the last block's commit time, in seconds.",
		}, labels),
		NumTxs: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: "num_txs",
			Help: "Number of transactions in the last committed block.",
		}, labels),
		EvidenceReported: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem, Name: "evidence_reported_total",
			Help: "Number of duplicate-vote evidence items reported to the Evidence Pool.",
		}, labels),
	}
}

// NopMetrics returns a Metrics whose fields all discard observations,
// for use in tests.
func NopMetrics() *Metrics {
	return &Metrics{
		Height:               discard.NewGauge(),
		Round:                discard.NewGauge(),
		Step:                 discard.NewGauge(),
		Rounds:               discard.NewGauge(),
		Votes:                discard.NewCounter(),
		LateVotes:            discard.NewCounter(),
		Proposals:            discard.NewCounter(),
		BlockIntervalSeconds: discard.NewHistogram(),
		NumTxs:               discard.NewGauge(),
		EvidenceReported:     discard.NewCounter(),
	}
}
