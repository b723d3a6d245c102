package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fabricmgmt/eventing-backend/pkg/db/models"
	"github.com/fabricmgmt/eventing-backend/pkg/enums"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.OutboxRecord{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return &Client{conn: conn}
}

func TestWithTxCommits(t *testing.T) {
	client := newTestClient(t)
	record := models.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: enums.AggregateCompany,
		AggregateID:   uuid.New(),
		EventType:     enums.EventCompanyCreated,
		EventVersion:  "1.0",
		Payload:       []byte(`{}`),
		Status:        enums.OutboxStatusNew,
		OccurredAt:    time.Now().UTC(),
	}

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&record).Error
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	var count int64
	if err := client.DB().Model(&models.OutboxRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	client := newTestClient(t)
	boom := errors.New("boom")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		record := models.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: enums.AggregateUser,
			AggregateID:   uuid.New(),
			EventType:     enums.EventUserCreated,
			EventVersion:  "1.0",
			Payload:       []byte(`{}`),
			Status:        enums.OutboxStatusNew,
			OccurredAt:    time.Now().UTC(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int64
	if err := client.DB().Model(&models.OutboxRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to leave 0 rows, got %d", count)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is not a violation")
	}
	err := errors.New(`duplicate key value violates unique constraint "processed_events_pkey"`)
	if !IsUniqueViolation(err, "") {
		t.Fatal("expected postgres duplicate key to match")
	}
	if !IsUniqueViolation(err, "processed_events_pkey") {
		t.Fatal("expected named constraint to match")
	}
	sqliteErr := errors.New("UNIQUE constraint failed: processed_events.event_id")
	if !IsUniqueViolation(sqliteErr, "") {
		t.Fatal("expected sqlite unique failure to match")
	}
}
