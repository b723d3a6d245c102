package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fabricmgmt/eventing-backend/pkg/db/models"
	"github.com/fabricmgmt/eventing-backend/pkg/enums"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	gdb := newTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "outbox-test"})
	return NewService(NewRepository(gdb), logg), gdb
}

func TestAppendStoresEnvelope(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	aggregateID := uuid.New()
	tenantID := uuid.New()

	err := gdb.Transaction(func(tx *gorm.DB) error {
		return svc.Append(ctx, tx, DomainEvent{
			EventType:     enums.EventFiberCreated,
			AggregateType: enums.AggregateFiber,
			AggregateID:   aggregateID,
			TenantID:      &tenantID,
			Headers:       map[string]string{"source": "fiber-service"},
			Data:          map[string]any{"grade": "A", "lotNumber": "L-1042"},
		})
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	var record models.OutboxRecord
	if err := gdb.First(&record, "aggregate_id = ?", aggregateID).Error; err != nil {
		t.Fatalf("fetch record: %v", err)
	}
	if record.Status != enums.OutboxStatusNew {
		t.Fatalf("expected NEW, got %s", record.Status)
	}
	if record.EventVersion != "1.0" {
		t.Fatalf("expected version 1.0, got %s", record.EventVersion)
	}
	if record.Headers["source"] != "fiber-service" {
		t.Fatalf("expected header preserved, got %v", record.Headers)
	}
	if record.TenantID == nil || *record.TenantID != tenantID {
		t.Fatal("expected tenant id preserved")
	}

	envelope, err := DecodeEnvelope(record.Payload)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.EventID == "" {
		t.Fatal("expected envelope event id")
	}
	if envelope.Version != 1 {
		t.Fatalf("expected envelope version 1, got %d", envelope.Version)
	}
	if envelope.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at set")
	}
}

func TestAppendRejectsUnknownTypes(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()

	err := gdb.Transaction(func(tx *gorm.DB) error {
		return svc.Append(ctx, tx, DomainEvent{
			EventType:     enums.EventType("BoltOfClothShipped"),
			AggregateType: enums.AggregateFiber,
			AggregateID:   uuid.New(),
		})
	})
	if err == nil {
		t.Fatal("expected unknown event type to be rejected")
	}

	err = gdb.Transaction(func(tx *gorm.DB) error {
		return svc.Append(ctx, tx, DomainEvent{
			EventType:     enums.EventFiberCreated,
			AggregateType: enums.AggregateType("LOOM"),
			AggregateID:   uuid.New(),
		})
	})
	if err == nil {
		t.Fatal("expected unknown aggregate type to be rejected")
	}
}

func TestAppendRequiresTransaction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Append(context.Background(), nil, DomainEvent{
		EventType:     enums.EventFiberCreated,
		AggregateType: enums.AggregateFiber,
		AggregateID:   uuid.New(),
	})
	if err == nil {
		t.Fatal("expected error without transaction")
	}
}

func TestAppendRollsBackWithCallerTransaction(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	aggregateID := uuid.New()

	wantErr := context.Canceled
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if err := svc.Append(ctx, tx, DomainEvent{
			EventType:     enums.EventFiberCreated,
			AggregateType: enums.AggregateFiber,
			AggregateID:   aggregateID,
		}); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}

	var count int64
	if err := gdb.Model(&models.OutboxRecord{}).
		Where("aggregate_id = ?", aggregateID).
		Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 0 {
		t.Fatal("expected appended row rolled back with the business transaction")
	}
}

func TestAppendIfAbsentSkipsPendingDuplicate(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	aggregateID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventContactVerified,
		AggregateType: enums.AggregateContact,
		AggregateID:   aggregateID,
		OccurredAt:    time.Now().UTC(),
	}

	for i := 0; i < 2; i++ {
		err := gdb.Transaction(func(tx *gorm.DB) error {
			return svc.AppendIfAbsent(ctx, tx, event)
		})
		if err != nil {
			t.Fatalf("append if absent (round %d): %v", i, err)
		}
	}

	var count int64
	if err := gdb.Model(&models.OutboxRecord{}).
		Where("aggregate_id = ?", aggregateID).
		Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestAppendIfAbsentAllowsNewAfterDelivery(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()
	aggregateID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventContactVerified,
		AggregateType: enums.AggregateContact,
		AggregateID:   aggregateID,
	}

	err := gdb.Transaction(func(tx *gorm.DB) error {
		return svc.AppendIfAbsent(ctx, tx, event)
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := gdb.Model(&models.OutboxRecord{}).
		Where("aggregate_id = ?", aggregateID).
		Update("status", enums.OutboxStatusPublished).Error; err != nil {
		t.Fatalf("mark published: %v", err)
	}

	err = gdb.Transaction(func(tx *gorm.DB) error {
		return svc.AppendIfAbsent(ctx, tx, event)
	})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}

	var count int64
	if err := gdb.Model(&models.OutboxRecord{}).
		Where("aggregate_id = ?", aggregateID).
		Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows after delivery, got %d", count)
	}
}
