package fifo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	t.Run("items come out in push order", func(t *testing.T) {
		q := NewQueue[int]()
		for i := 0; i < 100; i++ {
			require.True(t, q.Push(i))
		}
		require.Equal(t, 100, q.Len())
		for i := 0; i < 100; i++ {
			v, ok := q.TryPop()
			require.True(t, ok)
			require.Equal(t, i, v)
		}
		_, ok := q.TryPop()
		require.False(t, ok)
	})

	t.Run("pop waits for a producer", func(t *testing.T) {
		q := NewQueue[string]()
		go func() {
			time.Sleep(20 * time.Millisecond)
			q.Push("late")
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		v, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, "late", v)
	})

	t.Run("pop honours the context", func(t *testing.T) {
		q := NewQueue[string]()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := q.Pop(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("a closed queue drains then reports closure", func(t *testing.T) {
		q := NewQueue[int]()
		q.Push(1)
		q.Close()
		require.False(t, q.Push(2))

		v, err := q.Pop(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, v)
		_, err = q.Pop(context.Background())
		require.ErrorIs(t, err, ErrClosed)
	})

	t.Run("concurrent producers lose nothing", func(t *testing.T) {
		q := NewQueue[int]()
		var wg sync.WaitGroup
		for p := 0; p < 8; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 250; i++ {
					q.Push(i)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 2000, q.Len())
	})
}

func TestSignal(t *testing.T) {
	s := NewSignal()
	c := s.C()
	select {
	case <-c:
		t.Fatal("signal fired before notify")
	default:
	}

	s.Notify()
	select {
	case <-c:
	case <-time.After(time.Second):
		t.Fatal("signal did not fire")
	}

	select {
	case <-s.C():
		t.Fatal("fresh channel must not be closed")
	default:
	}
}
