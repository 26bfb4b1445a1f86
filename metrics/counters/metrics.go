package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fetchCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "steve",
	Name:      "fetch_total",
	Help:      "Fetch attempts by outcome.",
}, []string{"entity", "charge_point_id", "outcome"})

var storeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mongo",
	Name:      "upsert_total",
	Help:      "Upserts by result.",
}, []string{"collection", "result"})

var failuresGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "sync",
	Name:      "consecutive_failures",
	Help:      "Consecutive failed ticks of a poller.",
}, []string{"entity"})

var coolDownCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sync",
	Name:      "cool_down_total",
	Help:      "Times a poller backed off after repeated failures.",
}, []string{"entity"})

var statusCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "status_change_count",
	Help:      "Connector status transitions.",
}, []string{"charge_point_id", "status"})

var energyCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "consumed_energy_wh",
	Help:      "Energy accumulated between consecutive readings.",
}, []string{"charge_point_id"})

var meterGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ocpp",
	Name:      "meter_value",
	Help:      "Latest meter value by measurand.",
}, []string{"charge_point_id", "connector_id", "measurand"})

func ObserveFetch(entity, chargePointId, outcome string) {
	if len(chargePointId) == 0 {
		return
	}
	fetchCounter.With(prometheus.Labels{"entity": entity, "charge_point_id": chargePointId, "outcome": outcome}).Inc()
}

func ObserveUpsert(collection, result string) {
	storeCounter.With(prometheus.Labels{"collection": collection, "result": result}).Inc()
}

func ConsecutiveFailures(entity string, count int) {
	failuresGauge.With(prometheus.Labels{"entity": entity}).Set(float64(count))
}

func CountCoolDown(entity string) {
	coolDownCounter.With(prometheus.Labels{"entity": entity}).Inc()
}

func CountStatusChange(chargePointId, status string) {
	if len(chargePointId) == 0 {
		return
	}
	statusCounter.With(prometheus.Labels{"charge_point_id": chargePointId, "status": status}).Inc()
}

func CountConsumedEnergy(chargePointId string, wh float64) {
	if len(chargePointId) == 0 || wh <= 0 {
		return
	}
	energyCounter.With(prometheus.Labels{"charge_point_id": chargePointId}).Add(wh)
}

func ObserveMeterValue(chargePointId, connectorId, measurand string, value float64) {
	if len(chargePointId) == 0 {
		return
	}
	meterGauge.With(
		prometheus.Labels{
			"charge_point_id": chargePointId,
			"connector_id":    connectorId,
			"measurand":       measurand,
		}).Set(value)
}
