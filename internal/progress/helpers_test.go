package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/quizbox/internal/storage"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Emit(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

// blindKV hides change notifications, like a context that missed the storage event
type blindKV struct {
	storage.KV
}

func (blindKV) Watch(string, func(storage.Entry)) func() { return func() {} }

// failingKV rejects every write
type failingKV struct {
	storage.KV
}

var errDiskFull = errors.New("disk full")

func (failingKV) Put(context.Context, string, []byte, int64, string) (int64, error) {
	return 0, errDiskFull
}

func newTestStore(t *testing.T, kv storage.KV, opts ...Option) (*Store, *clock) {
	t.Helper()
	c := &clock{now: t0}
	opts = append([]Option{WithClock(c.Now)}, opts...)
	s, err := New(context.Background(), kv, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, c
}
