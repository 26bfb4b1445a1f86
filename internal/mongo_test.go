package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MagicHoovy/Steve/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func chargerDoc(status, energy string) models.Document {
	return models.Document{
		"chargeBoxId":     "CDJ940009",
		"connectorId":     float64(1),
		"connectorStatus": status,
		"meterValues": map[string]interface{}{
			"values": map[string]interface{}{
				"energy.active.import.register": map[string]interface{}{"value": energy, "unit": "Wh"},
			},
		},
	}
}

// storedDoc is the shape findAndModify returns for a previously written document
func storedDoc(status, energy string) bson.D {
	return bson.D{
		{Key: "_id", Value: "65a000000000000000000001"},
		{Key: "chargeBoxId", Value: "CDJ940009"},
		{Key: "connectorId", Value: float64(1)},
		{Key: "connectorStatus", Value: status},
		{Key: "meterValues", Value: bson.D{
			{Key: "values", Value: bson.D{
				{Key: "energy.active.import.register", Value: bson.D{
					{Key: "value", Value: energy},
					{Key: "unit", Value: "Wh"},
				}},
			}},
		}},
		{Key: models.UpdatedAtField, Value: time.Now().UTC()},
	}
}

func findAndModifyResponse(value interface{}) bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "value", Value: value},
		bson.E{Key: "lastErrorObject", Value: bson.D{{Key: "n", Value: 1}, {Key: "updatedExisting", Value: value != nil}}},
	)
}

func TestMongoUpsert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	kind := models.ChargerSnapshotKind("charger")

	mt.Run("first write creates the record", func(mt *mtest.T) {
		db := NewMongoDB(mt.Client, "test", time.Second)
		mt.AddMockResponses(findAndModifyResponse(nil))

		result, err := db.Upsert(context.Background(), kind, chargerDoc("Available", "100"))
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if result.Outcome != Created || result.Previous != nil {
			t.Fatalf("want created without previous, got %+v", result)
		}
		started := mt.GetStartedEvent()
		if started == nil || started.CommandName != "findAndModify" {
			t.Fatalf("expected findAndModify, got %+v", started)
		}
		update := started.Command.Lookup("update").Document()
		if _, err := update.LookupErr(models.UpdatedAtField); err != nil {
			t.Errorf("write timestamp not stamped: %v", err)
		}
		if upsert, ok := started.Command.Lookup("upsert").BooleanOK(); !ok || !upsert {
			t.Errorf("upsert flag not set")
		}
	})

	mt.Run("changed content is reported as modified", func(mt *mtest.T) {
		db := NewMongoDB(mt.Client, "test", time.Second)
		mt.AddMockResponses(findAndModifyResponse(storedDoc("Available", "100")))

		result, err := db.Upsert(context.Background(), kind, chargerDoc("Charging", "150"))
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if result.Outcome != Modified {
			t.Fatalf("want modified, got %s", result.Outcome)
		}
		if result.Previous.ConnectorStatus() != "Available" {
			t.Errorf("previous status: got %q", result.Previous.ConnectorStatus())
		}
		if energy, ok := result.Previous.EnergyWh(); !ok || energy != 100 {
			t.Errorf("previous energy: got %v %v", energy, ok)
		}
	})

	mt.Run("identical content is reported as unchanged", func(mt *mtest.T) {
		db := NewMongoDB(mt.Client, "test", time.Second)
		mt.AddMockResponses(findAndModifyResponse(storedDoc("Charging", "150")))

		result, err := db.Upsert(context.Background(), kind, chargerDoc("Charging", "150"))
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if result.Outcome != Unchanged {
			t.Fatalf("want unchanged, got %s", result.Outcome)
		}
	})

	mt.Run("server error becomes a store error", func(mt *mtest.T) {
		db := NewMongoDB(mt.Client, "test", time.Second)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11000,
			Message: "E11000 duplicate key error",
			Name:    "DuplicateKey",
		}))

		_, err := db.Upsert(context.Background(), kind, chargerDoc("Charging", "150"))
		var storeErr *StoreError
		if !errors.As(err, &storeErr) {
			t.Fatalf("want StoreError, got %v", err)
		}
		if storeErr.Key != "CDJ940009" || storeErr.Collection != "charger" {
			t.Errorf("unexpected context: %+v", storeErr)
		}
		if !mongo.IsDuplicateKeyError(err) {
			t.Errorf("duplicate key error should stay inspectable: %v", err)
		}
	})

	mt.Run("document without key is rejected", func(mt *mtest.T) {
		db := NewMongoDB(mt.Client, "test", time.Second)
		_, err := db.Upsert(context.Background(), kind, models.Document{"connectorId": float64(1)})
		var storeErr *StoreError
		if !errors.As(err, &storeErr) {
			t.Fatalf("want StoreError, got %v", err)
		}
	})
}

func TestMongoEnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("transaction indexes", func(mt *mtest.T) {
		db := NewMongoDB(mt.Client, "test", time.Second)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		if err := db.EnsureIndexes(context.Background(), models.TransactionKind("transactions")); err != nil {
			t.Fatalf("EnsureIndexes: %v", err)
		}
		started := mt.GetStartedEvent()
		if started == nil || started.CommandName != "createIndexes" {
			t.Fatalf("expected createIndexes, got %+v", started)
		}
		indexes, err := started.Command.Lookup("indexes").Array().Values()
		if err != nil {
			t.Fatalf("indexes: %v", err)
		}
		if len(indexes) != 2 {
			t.Fatalf("want 2 indexes, got %d", len(indexes))
		}
		unique, ok := indexes[0].Document().Lookup("unique").BooleanOK()
		if !ok || !unique {
			t.Errorf("id index must be unique")
		}
	})
}

func TestPlainDocument(t *testing.T) {
	raw, err := bson.Marshal(storedDoc("Charging", "150"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded bson.M
	if err = bson.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	doc := plainDocument(decoded)
	if _, ok := doc["meterValues"].(map[string]interface{}); !ok {
		t.Fatalf("nested document not converted: %T", doc["meterValues"])
	}
	if !doc.SameContent(chargerDoc("Charging", "150")) {
		t.Errorf("round tripped document should match the written one")
	}
}
