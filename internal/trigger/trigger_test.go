package trigger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lex00/wetwire-site-go/internal/metrics"
	"github.com/lex00/wetwire-site-go/internal/platform"
	"github.com/lex00/wetwire-site-go/internal/stackerr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []platform.Event
	fails  map[string]int
}

func (r *recorder) Handle(_ context.Context, ev platform.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.fails[ev.Key] > 0 {
		r.fails[ev.Key]--
		return fmt.Errorf("transient failure for %s", ev.Key)
	}
	return nil
}

func (r *recorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Key
	}
	sort.Strings(out)
	return out
}

func event(key string) platform.Event {
	return platform.Event{ID: "req-" + key, Bucket: "site-assets", Key: key, EventName: "ObjectCreated:Put", Target: "thumbnailer"}
}

func TestDispatcher_DeliversEveryEvent(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	reg.Register("thumbnailer", rec)
	d := NewDispatcher(reg, WithWorkers(3), WithBackoff(time.Millisecond))

	ctx := context.Background()
	var want []string
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("img/%02d.png", i)
		want = append(want, key)
		require.NoError(t, d.Publish(ctx, event(key)))
	}
	require.NoError(t, d.Close())

	assert.Equal(t, want, rec.keys())
	for _, ev := range rec.events {
		assert.Equal(t, "site-assets", ev.Bucket)
	}
}

func TestDispatcher_RetriesUntilDelivered(t *testing.T) {
	rec := &recorder{fails: map[string]int{"flaky.txt": 2}}
	reg := NewRegistry()
	reg.Register("thumbnailer", rec)
	promReg := prometheus.NewRegistry()
	d := NewDispatcher(reg, WithWorkers(1), WithMaxAttempts(3), WithBackoff(time.Millisecond), WithObserver(metrics.NewObserver(promReg)))

	require.NoError(t, d.Publish(context.Background(), event("flaky.txt")))
	require.NoError(t, d.Close())

	assert.Equal(t, []string{"flaky.txt", "flaky.txt", "flaky.txt"}, rec.keys(), "at-least-once: the handler may see an event more than once")
	n, err := testutil.GatherAndCount(promReg, "sitestack_trigger_deliveries_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "retried and delivered series")
}

func TestDispatcher_DropsAfterMaxAttempts(t *testing.T) {
	rec := &recorder{fails: map[string]int{"broken.txt": 10}}
	reg := NewRegistry()
	reg.Register("thumbnailer", rec)
	d := NewDispatcher(reg, WithWorkers(1), WithMaxAttempts(2), WithBackoff(time.Millisecond))

	require.NoError(t, d.Publish(context.Background(), event("broken.txt")))
	err := d.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyRetries)
	assert.Contains(t, err.Error(), "broken.txt")
	assert.Len(t, rec.keys(), 2)
}

func TestDispatcher_UnknownHandler(t *testing.T) {
	d := NewDispatcher(NewRegistry(), WithWorkers(1))
	defer d.Close()

	err := d.Publish(context.Background(), event("x"))
	assert.ErrorIs(t, err, stackerr.ErrUnknownHandler)
	assert.True(t, stackerr.IsPrecondition(err))
}

func TestDispatcher_PublishAfterClose(t *testing.T) {
	reg := NewRegistry()
	reg.Register("thumbnailer", &recorder{})
	d := NewDispatcher(reg)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	assert.ErrorIs(t, d.Publish(context.Background(), event("late")), ErrClosed)
}

func TestDispatcher_PublishHonoursContext(t *testing.T) {
	block := make(chan struct{})
	reg := NewRegistry()
	reg.Register("thumbnailer", HandlerFunc(func(context.Context, platform.Event) error {
		<-block
		return nil
	}))
	d := NewDispatcher(reg, WithWorkers(1), WithQueueSize(1))

	ctx := context.Background()
	require.NoError(t, d.Publish(ctx, event("a"))) // taken by the worker
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Publish(ctx, event("b"))) // fills the queue

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Publish(cctx, event("c")), context.DeadlineExceeded)

	close(block)
	require.NoError(t, d.Close())
}

type fakeNotifications struct {
	puts    []platform.NotificationInput
	deletes []string
	putErr  error
}

func (f *fakeNotifications) PutBucketNotification(_ context.Context, in platform.NotificationInput) (platform.NotificationInfo, error) {
	if f.putErr != nil {
		return platform.NotificationInfo{}, f.putErr
	}
	f.puts = append(f.puts, in)
	return platform.NotificationInfo{ID: "n-1", Bucket: in.Bucket, Events: in.Events, Target: in.Target}, nil
}

func (f *fakeNotifications) DeleteBucketNotification(_ context.Context, bucket, id string) error {
	f.deletes = append(f.deletes, bucket+"/"+id)
	return nil
}

func TestRegister(t *testing.T) {
	reg := NewRegistry()
	reg.Register("thumbnailer", &recorder{})
	client := &fakeNotifications{}
	ctx := context.Background()

	h, err := Register(ctx, client, reg, "SiteUploadTrigger", "site-assets", "thumbnailer", []string{"s3:ObjectCreated:*"})
	require.NoError(t, err)
	assert.Equal(t, Handle{ID: "n-1", Bucket: "site-assets", HandlerRef: "thumbnailer", Events: []string{"s3:ObjectCreated:*"}}, h)

	require.NoError(t, Deregister(ctx, client, h))
	assert.Equal(t, []string{"site-assets/n-1"}, client.deletes)

	_, err = Register(ctx, client, reg, "SiteUploadTrigger", "site-assets", "resizer", nil)
	assert.ErrorIs(t, err, stackerr.ErrUnknownHandler)
	assert.True(t, stackerr.IsPrecondition(err))
	assert.Len(t, client.puts, 1, "unknown handler registers nothing")

	_, err = Register(ctx, client, reg, "SiteUploadTrigger", "", "thumbnailer", nil)
	assert.ErrorIs(t, err, stackerr.ErrDependencyNotReady)

	client.putErr = errors.New("throttled")
	_, err = Register(ctx, client, reg, "SiteUploadTrigger", "site-assets", "thumbnailer", nil)
	assert.EqualError(t, err, "throttled")
}

func TestRegistry_Refs(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", &recorder{})
	reg.Register("a", &recorder{})
	assert.Equal(t, []string{"a", "b"}, reg.Refs())
}
