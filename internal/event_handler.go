package internal

import (
	"time"

	"github.com/MagicHoovy/Steve/changes"
)

// EventHandler receives the changes detected on mirrored documents
type EventHandler interface {
	OnStatusChanged(event *EventMessage)
	OnEnergyIncreased(event *EventMessage)
}

type EventMessage struct {
	Type          string              `json:"type" bson:"type"`
	Entity        string              `json:"entity" bson:"entity"`
	ChargePointId string              `json:"charge_point_id" bson:"charge_point_id"`
	ConnectorId   int                 `json:"connector_id" bson:"connector_id"`
	Time          time.Time           `json:"time" bson:"time"`
	Info          string              `json:"info" bson:"info"`
	Payload       changes.Observation `json:"payload" bson:"payload"`
}

func NewEventMessage(entity string, observation changes.Observation) *EventMessage {
	return &EventMessage{
		Type:          string(observation.Type),
		Entity:        entity,
		ChargePointId: observation.ChargeBoxId,
		ConnectorId:   observation.ConnectorId,
		Time:          time.Now().UTC(),
		Info:          observation.String(),
		Payload:       observation,
	}
}

// DispatchEvent routes the message to the handler method matching its type
func DispatchEvent(handler EventHandler, event *EventMessage) {
	switch changes.Type(event.Type) {
	case changes.StatusChanged:
		handler.OnStatusChanged(event)
	case changes.EnergyIncreased:
		handler.OnEnergyIncreased(event)
	}
}
