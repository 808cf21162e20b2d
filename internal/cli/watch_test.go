package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/kinship/pkg/config"
	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/layout"
	"github.com/matzehuels/kinship/pkg/tree"
)

// lockedBuffer is a bytes.Buffer safe for a logger on another goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestWatcher(t *testing.T, output string) *watcher {
	t.Helper()
	c := New(io.Discard, LogInfo)
	sess, release, err := c.serveSession(context.Background(), "", serveFlags{file: writeTree(t, t.TempDir())})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(release)
	return &watcher{sess: sess, cfg: layout.DefaultConfig(), output: output, logger: log.New(io.Discard)}
}

func TestWatcher_Summarize(t *testing.T) {
	out := filepath.Join(t.TempDir(), "live.svg")
	w := newTestWatcher(t, out)

	s, err := w.summarize()
	if err != nil {
		t.Fatal(err)
	}
	if s.GraphID != "g1" || len(s.Persons) != 4 || s.Edges != 4 {
		t.Errorf("summary = %s with %d persons and %d edges", s.GraphID, len(s.Persons), s.Edges)
	}
	if s.Hubs < 1 || s.Unplaced != 1 {
		t.Errorf("summary has %d hubs and %d unplaced, want a hub and 1", s.Hubs, s.Unplaced)
	}
	if s.Generations["ann"] != 0 || s.Generations["cat"] != 1 || s.Generations["dan"] != 2 {
		t.Errorf("Generations = %v", s.Generations)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("diagram not written: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("<svg")) {
		t.Errorf("diagram = %.40s", data)
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestWatcher_RunPlain(t *testing.T) {
	w := newTestWatcher(t, "")
	var logs lockedBuffer
	w.logger = log.New(&logs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.runPlain(ctx) }()

	waitFor := func(cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("condition not met, logs:\n%s", logs.String())
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	waitFor(func() bool { return strings.Contains(logs.String(), "persons=4") })

	if _, err := w.sess.Store().AddNode(tree.Person{ID: "eve"}); err != nil {
		t.Fatal(err)
	}
	waitFor(func() bool { return strings.Contains(logs.String(), "persons=5") })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runPlain = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runPlain did not return after cancel")
	}
}

func TestOpenSession_NothingToWatch(t *testing.T) {
	testEnv(t)
	c := New(io.Discard, LogInfo)
	c.Config.Feed.Transport = config.FeedNone

	_, _, err := c.openSession(context.Background(), "g1", "")
	if !kerrors.Is(err, kerrors.ErrCodeInvalidInput) {
		t.Errorf("openSession = %v, want %s", err, kerrors.ErrCodeInvalidInput)
	}

	c.Config.Feed.Transport = config.FeedRealtime
	if _, _, err := c.openSession(context.Background(), "g1", ""); err == nil {
		t.Error("realtime feed without backend URL opened")
	}
}

func TestWatchModel(t *testing.T) {
	w := newTestWatcher(t, "")
	m := newWatchModel(w)
	defer m.stop()

	msg := m.refresh()()
	if _, ok := msg.(summaryMsg); !ok {
		t.Fatalf("refresh produced %T", msg)
	}
	m.Update(msg)

	view := m.View()
	for _, want := range []string{"g1", "4 persons", "4 edges", "1 unplaced", "Ann Smith", "Dan"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}

	m.height = 2
	for range 5 {
		m.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	if m.cursor != 3 || m.offset != 2 {
		t.Errorf("after scrolling: cursor %d, offset %d, want 3 and 2", m.cursor, m.offset)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	if m.cursor != 2 {
		t.Errorf("cursor after k = %d, want 2", m.cursor)
	}

	m.Update(closedMsg{})
	if !strings.Contains(m.View(), "session closed") {
		t.Error("view does not report the closed session")
	}

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); cmd == nil {
		t.Error("q did not quit")
	} else if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not produce a quit message")
	}
}
