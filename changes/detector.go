package changes

import (
	"fmt"

	"github.com/MagicHoovy/Steve/models"
	"github.com/MagicHoovy/Steve/utility"
)

type Type string

const (
	StatusChanged   Type = "StatusChanged"
	EnergyIncreased Type = "EnergyIncreased"
)

// Observation is one noteworthy difference between the stored and the fetched document
type Observation struct {
	Type        Type    `json:"type"`
	ChargeBoxId string  `json:"charge_box_id"`
	ConnectorId int     `json:"connector_id"`
	From        string  `json:"from,omitempty"`
	To          string  `json:"to,omitempty"`
	EnergyFrom  float64 `json:"energy_from,omitempty"`
	EnergyTo    float64 `json:"energy_to,omitempty"`
	Delta       float64 `json:"delta,omitempty"`
}

func (o Observation) String() string {
	switch o.Type {
	case StatusChanged:
		return fmt.Sprintf("Status changed: %s -> %s", o.From, o.To)
	case EnergyIncreased:
		return fmt.Sprintf("Energy consumption increased: %s Wh", utility.FormatFloat(o.Delta))
	}
	return string(o.Type)
}

// Detect compares two versions of the same entity. A missing or non numeric
// energy value on either side skips the energy comparison.
func Detect(prev, next models.Document) []Observation {
	if prev == nil || next == nil {
		return nil
	}
	var observations []Observation

	from, to := prev.ConnectorStatus(), next.ConnectorStatus()
	if from != to {
		observations = append(observations, Observation{
			Type:        StatusChanged,
			ChargeBoxId: next.ChargeBoxId(),
			ConnectorId: next.ConnectorId(),
			From:        from,
			To:          to,
		})
	}

	oldEnergy, okOld := prev.EnergyWh()
	newEnergy, okNew := next.EnergyWh()
	if okOld && okNew && newEnergy > oldEnergy {
		observations = append(observations, Observation{
			Type:        EnergyIncreased,
			ChargeBoxId: next.ChargeBoxId(),
			ConnectorId: next.ConnectorId(),
			EnergyFrom:  oldEnergy,
			EnergyTo:    newEnergy,
			Delta:       newEnergy - oldEnergy,
		})
	}
	return observations
}
