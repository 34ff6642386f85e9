package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testConn 큐만 있는 연결. writer 를 띄우지 않으므로 c.send 를 직접 읽는다.
func testConn(id string) *Conn {
	return newConn(id, Identity{}, nil, 32, 0, zerolog.Nop())
}

// newTestRelay writer 없이 연결을 직접 꽂아 쓰는 Relay
func newTestRelay(t *testing.T, ids ...string) (*Relay, map[string]*Conn) {
	t.Helper()
	r := New(Options{Logger: zerolog.Nop()})
	conns := make(map[string]*Conn, len(ids))
	for _, id := range ids {
		c := testConn(id)
		r.conns.Add(c)
		conns[id] = c
	}
	return r, conns
}

// drain 큐에 쌓인 프레임을 모두 꺼내 디코딩
func drain(t *testing.T, c *Conn) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var m map[string]any
			require.NoError(t, json.Unmarshal(data, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func discard(c *Conn) {
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func kinds(frames []map[string]any) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f["type"].(string))
	}
	return out
}

func rawFrame(t *testing.T, v map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// fakeTransport writer 고루틴이 쓰는 메모리 Transport
type fakeTransport struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	failWrite bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) WriteText(data []byte) error {
	f.mu.Lock()
	fail := f.failWrite
	f.mu.Unlock()
	if fail {
		return errors.New("broken pipe")
	}
	f.frames <- append([]byte(nil), data...)
	return nil
}

func (f *fakeTransport) Ping() error { return nil }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-f.frames:
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}
