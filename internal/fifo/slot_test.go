package fifo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlot(t *testing.T) {
	t.Run("an empty slot has nothing visible and clearing it is a no-op", func(t *testing.T) {
		var s Slot[string]
		require.False(t, s.Available())
		_, ok := s.Peek()
		require.False(t, ok)
		require.False(t, s.Clear())
		require.False(t, s.Clear())
		require.Equal(t, 0, s.Len())
	})

	t.Run("only the head is visible until it is cleared", func(t *testing.T) {
		var s Slot[int]
		for i := 1; i <= 5; i++ {
			s.Push(i)
		}

		for want := 1; want <= 5; want++ {
			require.True(t, s.Available())
			got, ok := s.Peek()
			require.True(t, ok)
			require.Equal(t, want, got)

			// Repeated reads do not advance the slot.
			got, _ = s.Peek()
			require.Equal(t, want, got)

			require.True(t, s.Clear())
		}
		require.False(t, s.Available())
	})

	t.Run("items pushed while the head is held keep their order", func(t *testing.T) {
		var s Slot[int]
		s.Push(1)
		s.Push(2)
		require.True(t, s.Clear())
		s.Push(3)

		v, ok := s.Take()
		require.True(t, ok)
		require.Equal(t, 2, v)
		v, ok = s.Take()
		require.True(t, ok)
		require.Equal(t, 3, v)
		_, ok = s.Take()
		require.False(t, ok)
	})

	t.Run("reset drops everything", func(t *testing.T) {
		var s Slot[[]byte]
		s.Push([]byte("a"))
		s.Push([]byte("b"))
		s.Reset()
		require.Equal(t, 0, s.Len())
		s.Push([]byte("c"))
		v, ok := s.Peek()
		require.True(t, ok)
		require.Equal(t, []byte("c"), v)
	})
}
