package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/internal/event"
	"github.com/d60-Lab/community-core/internal/idgen"
	"github.com/d60-Lab/community-core/internal/model"
	"github.com/d60-Lab/community-core/internal/repository"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Outbox{}, &model.DeadLetter{}))
	return db
}

func newWriter(t *testing.T, types ...event.Type) *Writer {
	t.Helper()
	gen, err := idgen.New(1)
	require.NoError(t, err)
	return NewWriter(gen, types...)
}

type fakePublisher struct {
	published map[string][][]byte
	fail      bool
}

func (p *fakePublisher) Publish(_ context.Context, topic string, message []byte) error {
	if p.fail {
		return errors.New("broker unreachable")
	}
	if p.published == nil {
		p.published = make(map[string][][]byte)
	}
	p.published[topic] = append(p.published[topic], message)
	return nil
}

func TestPublishCommitsWithTransaction(t *testing.T) {
	db := setupDB(t)
	w := newWriter(t, event.TypeBoardCreated)

	var eventID int64
	err := db.Transaction(func(tx *gorm.DB) error {
		id, err := w.Publish(tx, event.BoardCreatedPayload{BoardID: 42, AuthorID: 9, Title: "hello"})
		eventID = id
		return err
	})
	require.NoError(t, err)

	var recs []model.Outbox
	require.NoError(t, db.Find(&recs).Error)
	require.Len(t, recs, 1)
	require.Equal(t, eventID, recs[0].ID)
	require.Equal(t, string(event.TypeBoardCreated), recs[0].EventType)

	env, err := event.Decode([]byte(recs[0].Payload))
	require.NoError(t, err)
	require.Equal(t, eventID, env.EventID)
	p := env.Payload.(event.BoardCreatedPayload)
	require.Equal(t, int64(42), p.BoardID)
}

func TestPublishRollsBackWithTransaction(t *testing.T) {
	db := setupDB(t)
	w := newWriter(t, event.TypeBoardCreated)

	boom := errors.New("business failure")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := w.Publish(tx, event.BoardCreatedPayload{BoardID: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&model.Outbox{}).Count(&count).Error)
	require.Zero(t, count, "rolled-back transaction must leave no outbox record")
}

func TestPublishRejectsUnregisteredType(t *testing.T) {
	db := setupDB(t)
	w := newWriter(t, event.TypeBoardCreated)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := w.Publish(tx, event.BoardViewedPayload{BoardID: 1})
		return err
	})
	require.ErrorIs(t, err, ErrUnsupportedEventType)
}

func seedOutbox(t *testing.T, db *gorm.DB, w *Writer, payload event.Payload) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = w.Publish(tx, payload)
		return err
	}))
	// 让记录超过 relay delay
	require.NoError(t, db.Model(&model.Outbox{}).Where("id = ?", id).
		Update("created_at", time.Now().Add(-time.Minute)).Error)
	return id
}

func TestRelayPublishesAndDeletes(t *testing.T) {
	db := setupDB(t)
	w := newWriter(t, event.TypeBoardCreated)
	id := seedOutbox(t, db, w, event.BoardCreatedPayload{BoardID: 42})

	pub := &fakePublisher{}
	relay := NewRelay(repository.NewOutboxRepository(db), pub, time.Second, time.Second, 10, 3)
	require.NoError(t, relay.processOnce(context.Background()))

	require.Len(t, pub.published[event.TopicRead], 1)
	env, err := event.Decode(pub.published[event.TopicRead][0])
	require.NoError(t, err)
	require.Equal(t, id, env.EventID)

	var count int64
	require.NoError(t, db.Model(&model.Outbox{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRelayRetriesThenDeadLetters(t *testing.T) {
	db := setupDB(t)
	w := newWriter(t, event.TypeBoardCreated)
	id := seedOutbox(t, db, w, event.BoardCreatedPayload{BoardID: 42})

	pub := &fakePublisher{fail: true}
	const maxRetry = 3
	relay := NewRelay(repository.NewOutboxRepository(db), pub, time.Second, time.Second, 10, maxRetry)
	ctx := context.Background()

	for i := 0; i < maxRetry; i++ {
		require.NoError(t, relay.processOnce(ctx))
	}

	// 超限后外发盒清空，死信表有且仅有一条
	var outCount int64
	require.NoError(t, db.Model(&model.Outbox{}).Count(&outCount).Error)
	require.Zero(t, outCount)

	var dl model.DeadLetter
	require.NoError(t, db.First(&dl).Error)
	require.Equal(t, id, dl.EventID)
	require.Equal(t, model.FailureSourceRelay, dl.FailureSource)
	require.Equal(t, maxRetry, dl.RetryCount)
	require.Contains(t, dl.LastError, "broker unreachable")

	// 死信后不再重试
	require.NoError(t, relay.processOnce(ctx))
	var dlCount int64
	require.NoError(t, db.Model(&model.DeadLetter{}).Count(&dlCount).Error)
	require.Equal(t, int64(1), dlCount)
}

func TestRelaySkipsRecentRecords(t *testing.T) {
	db := setupDB(t)
	w := newWriter(t, event.TypeBoardCreated)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := w.Publish(tx, event.BoardCreatedPayload{BoardID: 1})
		return err
	}))

	pub := &fakePublisher{}
	relay := NewRelay(repository.NewOutboxRepository(db), pub, time.Second, time.Minute, 10, 3)
	require.NoError(t, relay.processOnce(context.Background()))
	require.Empty(t, pub.published, "records younger than the relay delay stay queued")
}
