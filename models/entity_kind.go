package models

import (
	"fmt"
	"net/url"
)

const latestTransactionPath = "/api/v1/transactions/charger/%s/latest"

// Index describes one collection index, fields in order with 1 or -1 direction
type Index struct {
	Fields []IndexField
	Unique bool
}

type IndexField struct {
	Name      string
	Direction int
}

// EntityKind holds everything that differs between the mirrored document types:
// where they come from, where they go and what identifies them
type EntityKind struct {
	Name       string
	Collection string
	KeyField   string
	Required   []string
	Indexes    []Index
}

// Path is the SteVe endpoint relative to the API base url
func (k EntityKind) Path(chargerId string) string {
	return fmt.Sprintf(latestTransactionPath, url.PathEscape(chargerId))
}

// Key returns the identifier of the document under this kind
func (k EntityKind) Key(doc Document) string {
	return doc.String(k.KeyField)
}

// KeyValue is the raw identifier used in store filters, preserving its JSON type
func (k EntityKind) KeyValue(doc Document) interface{} {
	return doc[k.KeyField]
}

func ChargerSnapshotKind(collection string) EntityKind {
	if collection == "" {
		collection = "charger"
	}
	return EntityKind{
		Name:       "ChargerSnapshot",
		Collection: collection,
		KeyField:   FieldChargeBoxId,
		Required:   []string{FieldChargeBoxId, FieldConnectorId, FieldConnectorStatus},
		Indexes: []Index{
			{Fields: []IndexField{{Name: FieldChargeBoxId, Direction: 1}}, Unique: true},
		},
	}
}

func TransactionKind(collection string) EntityKind {
	if collection == "" {
		collection = "transactions"
	}
	return EntityKind{
		Name:       "Transaction",
		Collection: collection,
		KeyField:   FieldTransactionId,
		Required:   []string{FieldTransactionId, FieldChargeBoxId, FieldConnectorId, FieldConnectorStatus},
		Indexes: []Index{
			{Fields: []IndexField{{Name: FieldTransactionId, Direction: 1}}, Unique: true},
			{Fields: []IndexField{{Name: FieldChargeBoxId, Direction: 1}, {Name: FieldTimestamp, Direction: -1}}},
		},
	}
}
