package redisclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	redismock "github.com/go-redis/redismock/v8"
)

// TestAddToStream_Success verifies that AddToStream writes to the Redis Stream on first attempt.
func TestAddToStream_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db}

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "s",
		Values: map[string]interface{}{"foo": "bar"},
	}).SetVal("0-1")

	if err := client.AddToStream(context.Background(), "s", map[string]interface{}{"foo": "bar"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// TestAddToStream_RetryOnError ensures AddToStream retries on a transient Redis error.
func TestAddToStream_RetryOnError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db}

	mock.ExpectXAdd(&redis.XAddArgs{Stream: "s", Values: map[string]interface{}{}}).SetErr(redis.Nil)
	mock.ExpectXAdd(&redis.XAddArgs{Stream: "s", Values: map[string]interface{}{}}).SetVal("0-2")

	if err := client.AddToStream(context.Background(), "s", map[string]interface{}{}); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCacheSnapshot(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db}
	payload := []byte(`{"view":"market","quotes":[]}`)

	mock.ExpectHSet(SnapshotKey, map[string]interface{}{"market": payload}).SetVal(1)
	mock.ExpectPublish(SnapshotChannelPrefix+"market", payload).SetVal(1)

	if err := client.CacheSnapshot(context.Background(), "market", payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCachedSnapshot(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db}

	mock.ExpectHGet(SnapshotKey, "hero").SetVal(`{"view":"hero"}`)
	got, err := client.CachedSnapshot(context.Background(), "hero")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"view":"hero"}` {
		t.Errorf("got %s", got)
	}

	mock.ExpectHGet(SnapshotKey, "market").RedisNil()
	if _, err := client.CachedSnapshot(context.Background(), "market"); !errors.Is(err, redis.Nil) {
		t.Errorf("err = %v; want redis.Nil", err)
	}
}

func TestEnqueueContact(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db}
	payload := []byte(`{"id":"42","subject":"general"}`)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: ContactStream,
		Values: map[string]interface{}{"payload": payload},
	}).SetVal("1-0")

	if err := client.EnqueueContact(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReadContacts(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db}
	args := &redis.XReadArgs{Streams: []string{ContactStream, "0-0"}, Count: 10, Block: time.Second}

	mock.ExpectXRead(args).SetVal([]redis.XStream{{
		Stream:   ContactStream,
		Messages: []redis.XMessage{{ID: "1-0", Values: map[string]interface{}{"payload": `{"id":"42"}`}}},
	}})
	msgs, err := client.ReadContacts(context.Background(), "0-0", 10, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "1-0" {
		t.Fatalf("msgs = %+v", msgs)
	}

	mock.ExpectXRead(args).RedisNil()
	msgs, err = client.ReadContacts(context.Background(), "0-0", 10, time.Second)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("idle read = %v, %v; want nothing", msgs, err)
	}
}

func TestLastContactID(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db}

	mock.ExpectXRevRangeN(ContactStream, "+", "-", 1).SetVal([]redis.XMessage{{ID: "7-1"}})
	if id, err := client.LastContactID(context.Background()); err != nil || id != "7-1" {
		t.Fatalf("LastContactID = %q, %v", id, err)
	}

	mock.ExpectXRevRangeN(ContactStream, "+", "-", 1).SetVal([]redis.XMessage{})
	if id, err := client.LastContactID(context.Background()); err != nil || id != "0-0" {
		t.Fatalf("empty stream = %q, %v; want 0-0", id, err)
	}
}

func TestCircuitBreaker_RejectsWhileOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db, state: 1, lastFailure: time.Now().Unix()}

	if err := client.Publish(context.Background(), "c", "m"); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Fatalf("err = %v; want ErrCircuitBreakerOpen", err)
	}
	if err := client.CacheSnapshot(context.Background(), "hero", []byte("{}")); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Fatalf("err = %v; want ErrCircuitBreakerOpen", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected redis traffic: %v", err)
	}
}

func TestCircuitBreaker_ClosesAfterCooldownSuccess(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db, state: 1, lastFailure: time.Now().Add(-time.Minute).Unix()}

	mock.ExpectPublish("c", "m").SetVal(0)
	if err := client.Publish(context.Background(), "c", "m"); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if client.state != 0 {
		t.Errorf("state = %d; want closed after a good trial call", client.state)
	}
}

func TestCheckCircuitBreaker_OpensAfterFiveFailures(t *testing.T) {
	client := &Client{}
	for i := 0; i < 4; i++ {
		client.checkCircuitBreaker(errors.New("down"))
	}
	if client.state != 0 {
		t.Fatal("opened too early")
	}
	client.checkCircuitBreaker(errors.New("down"))
	if client.state != 1 {
		t.Fatal("not opened after five failures")
	}
	client.checkCircuitBreaker(nil)
	if client.failureCount != 0 || client.state != 0 {
		t.Errorf("after success: failures=%d state=%d", client.failureCount, client.state)
	}
}

func TestCircuitBreaker_TripsAgainAfterRecovery(t *testing.T) {
	client := &Client{}
	trip := func() {
		for i := 0; i < 5; i++ {
			client.checkCircuitBreaker(errors.New("down"))
		}
	}
	cooldown := func() {
		atomic.StoreInt64(&client.lastFailure, time.Now().Add(-time.Minute).Unix())
	}

	trip()
	if !client.open() {
		t.Fatal("breaker should be open after five failures")
	}
	cooldown()
	if client.open() || atomic.LoadInt32(&client.state) != 2 {
		t.Fatalf("state = %d; want half-open after the cooldown", client.state)
	}
	client.checkCircuitBreaker(nil)
	if atomic.LoadInt32(&client.state) != 0 {
		t.Fatalf("state = %d; want closed after a good trial call", client.state)
	}

	trip()
	if !client.open() {
		t.Fatalf("state = %d; breaker must open again on a second outage", client.state)
	}

	// A failed trial call goes straight back to open.
	cooldown()
	client.open()
	client.checkCircuitBreaker(errors.New("still down"))
	if atomic.LoadInt32(&client.state) != 1 || !client.open() {
		t.Fatalf("state = %d; want open after a failed trial call", client.state)
	}
}

func TestPublish_RetryOnError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db}

	mock.ExpectPublish(SnapshotChannelPrefix+"hero", "{}").SetErr(errors.New("temporary failure"))
	mock.ExpectPublish(SnapshotChannelPrefix+"hero", "{}").SetVal(1)

	if err := client.Publish(context.Background(), SnapshotChannelPrefix+"hero", "{}"); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSnapshotKeys(t *testing.T) {
	if SnapshotKey != "site:snapshots" || SnapshotChannelPrefix+"market" != "site:snapshot:market" {
		t.Errorf("keys = %q, %q", SnapshotKey, SnapshotChannelPrefix)
	}
}

func TestPing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &Client{rdb: db}
	mock.ExpectPing().SetVal("PONG")
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New("not a url"); err == nil {
		t.Error("expected error for invalid URL")
	}
}
