package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloDesc = "func SayHello(Greeting string) (Answer string)\nproperty Mood: string\ntag t1\n"

// syncBuffer is written by a running command while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// redisConfig starts a Redis server and returns a config file pointing at
// it.
func redisConfig(t *testing.T) string {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return writeFile(t, "tvio.yaml", fmt.Sprintf(`
bus:
  kind: redis
  redis:
    addr: %s
    prefix: "test:"
heartbeat: 50ms
peer_timeout: 250ms
labels:
  env: test
`, mr.Addr()))
}

func run(ctx context.Context, out io.Writer, args ...string) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(ctx)
}

// background runs a command until the test ends.
func background(t *testing.T, args ...string) (*syncBuffer, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	buf := &syncBuffer{}
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		done <- run(ctx, buf, args...)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			t.Error("command did not stop")
		}
	})
	return buf, done
}

func TestCheck(t *testing.T) {
	desc := writeFile(t, "hello.tvio", helloDesc)

	t.Run("valid descriptors print their topics", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, run(context.Background(), buf, "check", desc))
		assert.Contains(t, buf.String(), "✓ "+desc)
		assert.Contains(t, buf.String(), "tvio/t1/func/SayHello(string)(string)")
		assert.Contains(t, buf.String(), "tvio/t1/prop/Mood:string")
	})

	t.Run("json output", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, run(context.Background(), buf, "check", "--format", "json", desc))

		var resp struct {
			Status string      `json:"status"`
			Data   CheckResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, []string{
			"tvio/t1/func/SayHello(string)(string)",
			"tvio/t1/prop/Mood:string",
		}, resp.Data.Topics)
	})

	t.Run("invalid descriptors fail", func(t *testing.T) {
		broken := writeFile(t, "broken.tvio", "func SayHello(Greeting)\n")
		err := run(context.Background(), io.Discard, "check", broken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), broken)
	})

	t.Run("several descriptors list the ones they connect to", func(t *testing.T) {
		mood := writeFile(t, "mood.tvio", "property Mood: string\ntag t1\n")
		other := writeFile(t, "other.tvio", "property Mood: string\ntag t2\n")

		buf := &bytes.Buffer{}
		require.NoError(t, run(context.Background(), buf, "check", "--format", "json", desc, mood, other))

		dec := json.NewDecoder(buf)
		var matches [][]string
		for dec.More() {
			var resp struct {
				Data CheckResult `json:"data"`
			}
			require.NoError(t, dec.Decode(&resp))
			matches = append(matches, resp.Data.Matches)
		}
		assert.Equal(t, [][]string{{mood}, {desc}, nil}, matches)
	})

	t.Run("unknown formats are rejected", func(t *testing.T) {
		require.Error(t, run(context.Background(), io.Discard, "check", "--format", "xml", desc))
	})
}

func TestVersion(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), buf, "version"))
	assert.True(t, strings.HasPrefix(buf.String(), "tvio version "))
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, BusGossip, cfg.Bus.Kind)
		assert.Equal(t, time.Second, cfg.Heartbeat)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeFile(t, "p2p.yaml", `
bus:
  kind: p2p
  p2p:
    listen: ["/ip4/127.0.0.1/tcp/4001"]
    mdns: true
peer_timeout: 3s
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, BusP2P, cfg.Bus.Kind)
		assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001"}, cfg.Bus.P2P.ListenAddrs)
		assert.True(t, cfg.Bus.P2P.EnableMDNS)
		assert.Equal(t, 3*time.Second, cfg.PeerTimeout)
		assert.Equal(t, time.Second, cfg.Heartbeat, "untouched values keep their default")
	})

	t.Run("unknown bus kinds are rejected", func(t *testing.T) {
		_, err := LoadConfig(writeFile(t, "bad.yaml", "bus:\n  kind: carrier-pigeon\n"))
		require.Error(t, err)
	})
}

func TestServeAndCall(t *testing.T) {
	config := redisConfig(t)
	desc := writeFile(t, "hello.tvio", helloDesc)

	served, done := background(t, "--config", config, "serve", desc,
		"--count", "2",
		"--reply", `SayHello={"Answer":"Greetings back!"}`,
	)

	t.Run("call prints the reply", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, run(context.Background(), buf, "--config", config,
			"call", desc, "SayHello", `{"Greeting":"Hello"}`))
		assert.Equal(t, `{"Answer":"Greetings back!"}`+"\n", buf.String())
	})

	t.Run("call --all prints every answer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, run(context.Background(), buf, "--config", config, "--format", "json",
			"call", desc, "SayHello", `{"Greeting":"Hi"}`, "--all", "--expect", "1"))

		var resp struct {
			Data CallResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Len(t, resp.Data.ID, 36)
		assert.Equal(t, map[string]any{"Answer": "Greetings back!"}, resp.Data.Result)
	})

	t.Run("serve stops after --count requests", func(t *testing.T) {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("serve did not stop")
		}
		assert.Contains(t, served.String(), "call SayHello(")
		assert.Contains(t, served.String(), "call_all SayHello(")
	})
}

func TestGetAndObserve(t *testing.T) {
	config := redisConfig(t)
	desc := writeFile(t, "hello.tvio", helloDesc)

	background(t, "--config", config, "serve", desc, "--set", "Mood=sunny")

	buf := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), buf, "--config", config, "get", desc, "Mood"))
	assert.Equal(t, "sunny\n", buf.String())

	t.Run("a timeout ends the watch quietly", func(t *testing.T) {
		err := run(context.Background(), io.Discard, "--config", config,
			"observe", desc, "Mood", "--timeout", "300ms")
		require.NoError(t, err)
	})
}

func TestTriggerAndListen(t *testing.T) {
	config := redisConfig(t)
	desc := writeFile(t, "hello.tvio", helloDesc)

	background(t, "--config", config, "serve", desc)
	heard, done := background(t, "--config", config, "listen", desc, "SayHello", "--count", "1")

	// The listener must be subscribed before the trigger goes out.
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, run(context.Background(), io.Discard, "--config", config,
		"trigger", desc, "SayHello", "ping"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("listen did not stop")
	}
	assert.Equal(t, "SayHello(ping) -> ping\n", heard.String())
}
