package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements SET NX and the extend and release scripts on a map.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	extends int
	failSet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return redis.NewBoolResult(false, f.failSet)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch script {
	case releaseScript:
		delete(f.data, keys[0])
	case extendScript:
		f.extends++
		f.ttls[keys[0]] = time.Duration(args[1].(int64)) * time.Millisecond
	default:
		return redis.NewCmdResult(nil, errors.New("unexpected script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeRedis) extendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extends
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	r := newFakeRedis()
	l := NewRedisLocker(r, time.Minute, nil)

	release, err := l.Acquire(ctx, "JBC")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, r.ttls["palmdeploy:lock:jbc"])

	_, err = l.Acquire(ctx, "jbc")
	assert.ErrorIs(t, err, ErrLocked)

	// other networks are independent
	releaseOther, err := l.Acquire(ctx, "local")
	require.NoError(t, err)
	require.NoError(t, releaseOther(ctx))

	require.NoError(t, release(ctx))
	assert.ErrorIs(t, release(ctx), ErrNotHeld)

	release, err = l.Acquire(ctx, "jbc")
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestRedisLocker_TakenOver(t *testing.T) {
	ctx := context.Background()
	r := newFakeRedis()
	l := NewRedisLocker(r, 0, nil)
	assert.Equal(t, DefaultTTL, l.ttl)

	release, err := l.Acquire(ctx, "jbc")
	require.NoError(t, err)

	// the key expired and another run took it
	r.mu.Lock()
	r.data[Key("jbc")] = "someone-else"
	r.mu.Unlock()
	assert.ErrorIs(t, release(ctx), ErrNotHeld)
	assert.Equal(t, "someone-else", r.data[Key("jbc")])
}

func TestRedisLocker_ExtendsWhileHeld(t *testing.T) {
	ctx := context.Background()
	r := newFakeRedis()
	l := NewRedisLocker(r, 30*time.Millisecond, nil)

	release, err := l.Acquire(ctx, "jbc")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return r.extendCount() >= 2 }, time.Second, 5*time.Millisecond)
	r.mu.Lock()
	assert.Equal(t, 30*time.Millisecond, r.ttls[Key("jbc")])
	r.mu.Unlock()

	require.NoError(t, release(ctx))
	after := r.extendCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, r.extendCount())
}

func TestRedisLocker_StopsExtendingLostLock(t *testing.T) {
	ctx := context.Background()
	r := newFakeRedis()
	l := NewRedisLocker(r, 30*time.Millisecond, nil)

	release, err := l.Acquire(ctx, "jbc")
	require.NoError(t, err)

	r.mu.Lock()
	r.data[Key("jbc")] = "someone-else"
	r.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, r.extendCount())
	assert.ErrorIs(t, release(ctx), ErrNotHeld)
}

func TestRedisLocker_Error(t *testing.T) {
	r := newFakeRedis()
	r.failSet = errors.New("connection refused")
	_, err := NewRedisLocker(r, time.Minute, nil).Acquire(context.Background(), "jbc")
	assert.ErrorContains(t, err, "connection refused")
}

func TestOpen_NoRedis(t *testing.T) {
	l, closeFn, err := Open(context.Background(), "", time.Minute, nil)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, NoopLocker{}, l)

	release, err := l.Acquire(context.Background(), "jbc")
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))

	_, _, err = Open(context.Background(), "not-a-url", time.Minute, nil)
	assert.Error(t, err)
}
