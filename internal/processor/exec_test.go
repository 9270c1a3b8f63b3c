package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/automaton/internal/log"
	"github.com/mattjoyce/automaton/internal/protocol"
)

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "processor.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecSuccessWithRelativeOutput(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
printf 'Hello World!' > "$AUTOMATON_OUTPUT_DIR/a.txt.out"
echo '{"status":"ok","outputs":["a.txt.out"],"logs":[{"level":"info","message":"converted"}]}'
`)
	outDir := t.TempDir()

	p := &Exec{Command: script, Timeout: 10 * time.Second}
	res, err := p.Process(WithUnitID(context.Background(), "u1"), []string{"/in/a.txt"}, outDir)
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, []string{filepath.Join(outDir, "a.txt.out")}, res.Produced())

	got, err := os.ReadFile(filepath.Join(outDir, "a.txt.out"))
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", string(got))
}

func TestExecReceivesRequestOnStdin(t *testing.T) {
	outDir := t.TempDir()
	script := writeScript(t, `cat > "$AUTOMATON_OUTPUT_DIR/request.json"
echo '{"status":"ok","outputs":["request.json"]}'
`)

	p := &Exec{Command: script, Config: map[string]any{"mode": "strict"}}
	_, err := p.Process(WithUnitID(context.Background(), "unit-7"), []string{"/in/x"}, outDir)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(outDir, "request.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"unit_id":"unit-7"`)
	assert.Contains(t, string(raw), `"inputs":["/in/x"]`)
	assert.Contains(t, string(raw), `"mode":"strict"`)
}

func TestExecErrorStatusIsFailure(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo '{"status":"error","error":"schema mismatch"}'
exit 3
`)

	res, err := (&Exec{Command: script}).Process(context.Background(), nil, t.TempDir())
	require.NoError(t, err)
	require.False(t, res.Succeeded())
	assert.Equal(t, "schema mismatch", res.(Failure).Reason)
}

func TestExecInvalidStatusIsError(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo '{"status":"perhaps"}'
`)

	_, err := (&Exec{Command: script}).Process(context.Background(), nil, t.TempDir())
	assert.Error(t, err)
}

func TestExecEscapingOutputIsError(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo '{"status":"ok","outputs":["../../etc/passwd"]}'
`)

	_, err := (&Exec{Command: script}).Process(context.Background(), nil, t.TempDir())
	assert.Error(t, err)
}

func TestExecNoOutputIsError(t *testing.T) {
	script := writeScript(t, "exit 0\n")

	_, err := (&Exec{Command: script}).Process(context.Background(), nil, t.TempDir())
	assert.Error(t, err)
}

func TestExecMissingCommand(t *testing.T) {
	_, err := (&Exec{}).Process(context.Background(), nil, t.TempDir())
	assert.Error(t, err)

	_, err = (&Exec{Command: filepath.Join(t.TempDir(), "absent")}).Process(context.Background(), nil, t.TempDir())
	assert.Error(t, err)
}

func TestExecTimeout(t *testing.T) {
	script := writeScript(t, "exec sleep 30\n")

	p := &Exec{Command: script, Timeout: 100 * time.Millisecond, Grace: 100 * time.Millisecond}
	start := time.Now()
	_, err := p.Process(context.Background(), nil, t.TempDir())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecContextCancel(t *testing.T) {
	script := writeScript(t, "exec sleep 30\n")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p := &Exec{Command: script, Grace: 100 * time.Millisecond}
	_, err := p.Process(ctx, nil, t.TempDir())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCappedBufferKeepsPrefix(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = b.Write([]byte("cdef"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, _ = b.Write([]byte("gh"))

	assert.Equal(t, "abcd", b.String())
	assert.Equal(t, int64(4), b.dropped)
}

func TestExecCapsStderr(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
head -c 200000 /dev/zero | tr '\0' 'e' >&2
echo '{"status":"ok"}'
`)

	e := &Exec{Command: script, Timeout: 10 * time.Second}
	req := &protocol.Request{Protocol: protocol.Version, UnitID: "u1", OutputDir: t.TempDir()}
	resp, stderr, err := e.spawn(context.Background(), req, log.Nop())
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Len(t, stderr, maxStderrBytes)
}
