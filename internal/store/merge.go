package store

import (
	"context"
	"fmt"
	"time"

	"github.com/leadforge/truthtable-backend/internal/pkg/logger"
	"github.com/leadforge/truthtable-backend/internal/types"
)

// TimestampLayout is the UTC format stored in the UPDATE AS ON column.
const TimestampLayout = "2006-01-02T15:04:05Z"

type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// FailedRecord carries per-record failure detail out of a batch upsert.
type FailedRecord struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

type UpsertStats struct {
	Inserted       int            `json:"inserted"`
	Updated        int            `json:"updated"`
	Skipped        int            `json:"skipped"`
	Failed         int            `json:"failed"`
	InsertedEmails []string       `json:"inserted_emails"`
	UpdatedEmails  []string       `json:"updated_emails"`
	FailedRecords  []FailedRecord `json:"failed_records"`
}

// Truth applies the append-only merge policy on top of a Store. Enrichment
// only fills gaps: a populated column is never overwritten, and the
// Email Send (Yes/No) column is never touched by merges at all.
type Truth struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewTruth(s Store, baseLog *logger.Logger) *Truth {
	return &Truth{
		store: s,
		log:   baseLog.With("service", "Truth"),
		now:   time.Now,
	}
}

func (t *Truth) timestamp() string {
	return t.now().UTC().Format(TimestampLayout)
}

// Upsert executes exactly one of insert, update, or skip for the record.
// A record without an email reaching this point is an input-contract
// violation, not a recoverable merge outcome.
func (t *Truth) Upsert(ctx context.Context, rec types.Record) (int64, Action, error) {
	email := rec.Email()
	if email == "" {
		return 0, "", fmt.Errorf("record has no %s; caller must reject unkeyed records before upsert", types.ColEmail)
	}

	existing, sn, found, err := t.store.Get(ctx, email)
	if err != nil {
		return 0, "", fmt.Errorf("lookup %q: %w", types.ColEmail, err)
	}

	if !found {
		incoming := rec.Clone()
		delete(incoming, types.ColSN)
		delete(incoming, types.ColEnrichmentError)
		incoming[types.ColUpdatedAt] = t.timestamp()
		if incoming[types.ColEmailSend] == "" {
			incoming[types.ColEmailSend] = "No"
		}
		if err := t.store.EnsureColumns(ctx, incoming.ExtensionColumns()); err != nil {
			return 0, "", err
		}
		newSN, err := t.store.Insert(ctx, incoming)
		if err != nil {
			return 0, "", err
		}
		return newSN, ActionInsert, nil
	}

	merged := existing.Clone()
	fieldsFilled := 0
	for col, incomingVal := range rec {
		if col == types.ColSN || col == types.ColEmailSend || col == types.ColEnrichmentError {
			continue
		}
		existingVal, known := merged[col]
		if known && existingVal != "" {
			continue
		}
		merged[col] = incomingVal
		if incomingVal != "" && col != types.ColUpdatedAt {
			fieldsFilled++
		}
	}

	if fieldsFilled == 0 {
		return sn, ActionSkip, nil
	}

	merged[types.ColUpdatedAt] = t.timestamp()
	delete(merged, types.ColSN)
	if err := t.store.EnsureColumns(ctx, merged.ExtensionColumns()); err != nil {
		return 0, "", err
	}
	if err := t.store.Update(ctx, sn, merged); err != nil {
		return 0, "", err
	}
	return sn, ActionUpdate, nil
}

// UpsertBatch applies Upsert across an ordered list. A single record's
// failure is counted and reported; it never stops the rest of the batch.
// Batch writes are deliberately not one all-or-nothing transaction:
// partial persistence is an accepted outcome, reported via stats.
func (t *Truth) UpsertBatch(ctx context.Context, records []types.Record) ([]int64, UpsertStats) {
	stats := UpsertStats{
		InsertedEmails: []string{},
		UpdatedEmails:  []string{},
		FailedRecords:  []FailedRecord{},
	}
	sns := make([]int64, 0, len(records))
	t.log.Info("Starting batch upsert", "records", len(records))

	for i, rec := range records {
		email := rec.Email()
		sn, action, err := t.Upsert(ctx, rec)
		if err != nil {
			t.log.Error("Failed to upsert record", "index", i, "error", err.Error())
			stats.Failed++
			stats.FailedRecords = append(stats.FailedRecords, FailedRecord{Email: email, Error: err.Error()})
			sns = append(sns, -1)
			continue
		}
		sns = append(sns, sn)
		switch action {
		case ActionInsert:
			stats.Inserted++
			stats.InsertedEmails = append(stats.InsertedEmails, email)
		case ActionUpdate:
			stats.Updated++
			stats.UpdatedEmails = append(stats.UpdatedEmails, email)
		case ActionSkip:
			stats.Skipped++
		}
		if (i+1)%100 == 0 {
			t.log.Info("Batch upsert progress", "processed", i+1, "total", len(records))
		}
	}

	t.log.Info("Batch upsert complete",
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return sns, stats
}
