package tvio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeerDirectory_Record(t *testing.T) {
	dir := newPeerDirectory()
	now := time.Now()

	fresh, joined := dir.record("tvio/t1/func/A()()", "p1", now)
	require.True(t, fresh)
	require.True(t, joined, "p1 was unknown")

	fresh, joined = dir.record("tvio/t1/func/A()()", "p1", now)
	require.False(t, fresh, "refreshing is not news")
	require.False(t, joined)

	fresh, joined = dir.record("tvio/t1/prop/B:int", "p1", now)
	require.True(t, fresh, "p1 is new on that topic")
	require.False(t, joined, "but already known")

	require.Equal(t, 1, dir.count())
	require.True(t, dir.has("tvio/t1/prop/B:int", "p1"))
	require.False(t, dir.has("tvio/t1/prop/B:int", "p2"))
}

func TestPeerDirectory_Forget(t *testing.T) {
	dir := newPeerDirectory()
	now := time.Now()

	dir.record("a", "p1", now)
	dir.record("b", "p1", now)

	removed, left := dir.forget("a", "p1")
	require.True(t, removed)
	require.False(t, left, "p1 is still on b")

	removed, left = dir.forget("a", "p1")
	require.False(t, removed)
	require.False(t, left)

	removed, left = dir.forget("b", "p1")
	require.True(t, removed)
	require.True(t, left)
	require.Zero(t, dir.count())
}

func TestPeerDirectory_OnTopic(t *testing.T) {
	dir := newPeerDirectory()
	now := time.Now()

	dir.record("tvio/-/func/A()()", "p3", now)
	dir.record("tvio/-/func/A()()", "p1", now)
	dir.record("tvio/-/func/A()()", "p2", now)
	dir.record("tvio/-/func/A()()(x)", "p4", now)
	dir.record("tvio/-/func/AB()()", "p5", now)

	require.Equal(t, []string{"p1", "p2", "p3"}, dir.onTopic("tvio/-/func/A()()"),
		"peers of a topic must not leak into topics sharing its prefix")
	require.Empty(t, dir.onTopic("tvio/-/func/Z()()"))
}

func TestPeerDirectory_Expire(t *testing.T) {
	dir := newPeerDirectory()
	start := time.Now()

	dir.record("a", "old", start)
	dir.record("b", "old", start)
	dir.record("a", "young", start.Add(time.Second))
	dir.record("b", "mixed", start)
	dir.record("c", "mixed", start.Add(time.Second))

	left := dir.expire(start.Add(500 * time.Millisecond))
	require.Equal(t, []string{"old"}, left)
	require.Equal(t, []string{"young"}, dir.onTopic("a"))
	require.Empty(t, dir.onTopic("b"))
	require.Equal(t, []string{"mixed"}, dir.onTopic("c"))
	require.Equal(t, 2, dir.count())
}
