package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MagicHoovy/Steve/utility"
)

const (
	FieldChargeBoxId     = "chargeBoxId"
	FieldConnectorId     = "connectorId"
	FieldConnectorStatus = "connectorStatus"
	FieldTransactionId   = "id"
	FieldTimestamp       = "timestamp"
	FieldMeterValues     = "meterValues"
	FieldValues          = "values"

	// UpdatedAtField is stamped by the repository, never by the source
	UpdatedAtField = "_updated_at"
	objectIdField  = "_id"
)

// measurand keys as the SteVe latest-transaction endpoint groups them
const (
	MeterEnergy      = "energy.active.import.register"
	MeterTemperature = "temperature"
	MeterCurrent     = "current.import"
	MeterPower       = "power.active.import"
	MeterVoltage     = "voltage"
)

// Document is a JSON object received from SteVe, stored as is
type Document map[string]interface{}

func (d Document) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// String returns the field rendered as text, empty if absent
func (d Document) String(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return utility.FormatFloat(s)
	}
	return fmt.Sprint(v)
}

func (d Document) ChargeBoxId() string {
	return d.String(FieldChargeBoxId)
}

func (d Document) ConnectorStatus() string {
	return d.String(FieldConnectorStatus)
}

func (d Document) ConnectorId() int {
	f, _ := utility.ToFloat(d[FieldConnectorId])
	return int(f)
}

// Meter looks up meterValues.values[name]; missing levels are not an error
func (d Document) Meter(name string) (value, unit string, ok bool) {
	values := d.meterValues()
	if values == nil {
		return "", "", false
	}
	entry := asMap(values[name])
	if entry == nil {
		return "", "", false
	}
	raw, ok := entry["value"]
	if !ok || raw == nil {
		return "", "", false
	}
	value = fmt.Sprint(raw)
	if u, isString := entry["unit"].(string); isString {
		unit = u
	}
	return value, unit, true
}

// MeterFloat is the numeric form of a meter value
func (d Document) MeterFloat(name string) (float64, bool) {
	values := d.meterValues()
	if values == nil {
		return 0, false
	}
	entry := asMap(values[name])
	if entry == nil {
		return 0, false
	}
	return utility.ToFloat(entry["value"])
}

// EnergyWh is the active import register, the value used for consumption deltas
func (d Document) EnergyWh() (float64, bool) {
	return d.MeterFloat(MeterEnergy)
}

// MeterSummary renders the common measurands for a log line
func (d Document) MeterSummary() string {
	show := func(name string) string {
		value, _, ok := d.Meter(name)
		if !ok {
			return "-"
		}
		return value
	}
	return fmt.Sprintf("Energy: %s Wh, Temperature: %s°C, Current: %s A, Power: %s W, Voltage: %s V",
		show(MeterEnergy), show(MeterTemperature), show(MeterCurrent), show(MeterPower), show(MeterVoltage))
}

func (d Document) HasMeterValues() bool {
	return d.meterValues() != nil
}

func (d Document) meterValues() map[string]interface{} {
	wrapper := asMap(d[FieldMeterValues])
	if wrapper == nil {
		return nil
	}
	return asMap(wrapper[FieldValues])
}

// WithoutMeta returns a shallow copy with the store metadata removed
func (d Document) WithoutMeta() Document {
	c := make(Document, len(d))
	for k, v := range d {
		if k == UpdatedAtField || k == objectIdField {
			continue
		}
		c[k] = v
	}
	return c
}

// SameContent compares two documents ignoring store metadata. Documents read back
// from the store carry driver types, so both sides are compared in canonical JSON
func (d Document) SameContent(other Document) bool {
	if d == nil || other == nil {
		return d == nil && other == nil
	}
	a, err := canonical(d.WithoutMeta())
	if err != nil {
		return false
	}
	b, err := canonical(other.WithoutMeta())
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (d Document) Clone() Document {
	c := make(Document, len(d)+1)
	for k, v := range d {
		c[k] = v
	}
	return c
}

// canonical encodes the document with sorted keys; decoding and encoding again
// brings driver specific maps and arrays to plain JSON values
func canonical(d Document) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var plain interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err = decoder.Decode(&plain); err != nil {
		return nil, err
	}
	normalizeNumbers(plain)
	return json.Marshal(plain)
}

// normalizeNumbers rewrites json.Number in place so that 5 and 5.0 compare equal
func normalizeNumbers(v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, item := range t {
			if n, ok := item.(json.Number); ok {
				t[k] = numberValue(n)
				continue
			}
			normalizeNumbers(item)
		}
	case []interface{}:
		for i, item := range t {
			if n, ok := item.(json.Number); ok {
				t[i] = numberValue(n)
				continue
			}
			normalizeNumbers(item)
		}
	}
}

func numberValue(n json.Number) interface{} {
	if f, err := n.Float64(); err == nil {
		return f
	}
	return strings.TrimSpace(n.String())
}

func asMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		return m
	case Document:
		return m
	}
	return nil
}
