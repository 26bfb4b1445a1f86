package internal

import (
	"context"

	"github.com/MagicHoovy/Steve/models"
)

// Database is the document store the pollers mirror into
type Database interface {
	EnsureIndexes(ctx context.Context, kind models.EntityKind) error
	Upsert(ctx context.Context, kind models.EntityKind, doc models.Document) (*UpsertResult, error)
	WriteLogMessage(data Data) error
}

type Data interface {
	DataType() string
}

type Outcome string

const (
	Created   Outcome = "created"
	Modified  Outcome = "modified"
	Unchanged Outcome = "unchanged"
)

// UpsertResult reports what the write did; Previous is the stored document
// before the write, nil when the record was created
type UpsertResult struct {
	Outcome  Outcome
	Previous models.Document
}
