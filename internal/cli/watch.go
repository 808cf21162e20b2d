package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/layout"
	"github.com/matzehuels/kinship/pkg/render/svg"
	"github.com/matzehuels/kinship/pkg/session"
	"github.com/matzehuels/kinship/pkg/tree"
)

type watchFlags struct {
	conversation string
	output       string
	plain        bool
}

// watchCommand creates the watch command, which mirrors a shared tree live.
func (c *CLI) watchCommand() *cobra.Command {
	var f watchFlags

	cmd := &cobra.Command{
		Use:   "watch <graph-id>",
		Short: "Mirror a shared family tree live",
		Long: `Mirror a shared family tree live.

The tree is loaded from the backend and kept current through the configured
change feed. With --output the diagram is rewritten as SVG after every
change. Without a terminal, or with --plain, changes are logged instead of
shown in the interactive view.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd.Context(), args[0], f)
		},
	}

	cmd.Flags().StringVar(&f.conversation, "conversation", "", "also mirror the messages of this conversation")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "rewrite this SVG file on every change")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "log changes instead of showing the interactive view")

	return cmd
}

func (c *CLI) runWatch(ctx context.Context, graphID string, f watchFlags) error {
	sess, release, err := c.openSession(ctx, graphID, f.conversation)
	if err != nil {
		return err
	}
	defer release()

	w := &watcher{sess: sess, cfg: c.Config.Layout, output: f.output, logger: c.Logger}
	if f.plain || !isatty.IsTerminal(os.Stdout.Fd()) {
		return w.runPlain(ctx)
	}

	p := tea.NewProgram(newWatchModel(w), tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err = p.Run()
	return err
}

// openSession opens a viewing session with the configured loader and feed.
// The returned func closes the session and then the feed connection.
func (c *CLI) openSession(ctx context.Context, graphID, conversationID string) (*session.Session, func(), error) {
	opts := []session.Option{session.WithLogger(c.Logger)}

	closers := []func(){}
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if c.Config.Backend.DatabaseURL != "" {
		pg, err := c.openPostgres(ctx)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pg.Close)
		opts = append(opts, session.WithLoader(pg))
	}

	client, closeFeed, err := c.newFeed(ctx)
	if err != nil {
		release()
		return nil, nil, err
	}
	closers = append(closers, closeFeed)
	if client != nil {
		opts = append(opts, session.WithFeed(client))
	}

	if len(opts) == 1 {
		release()
		return nil, nil, kerrors.New(kerrors.ErrCodeInvalidInput,
			"nothing to watch: configure backend.database_url or a change feed")
	}
	if conversationID != "" {
		opts = append(opts, session.WithConversation(conversationID))
	}

	spinner := newSpinner(ctx, "Opening "+graphID+"...")
	spinner.Start()
	sess, err := session.Open(ctx, graphID, opts...)
	spinner.Stop()
	if err != nil {
		release()
		return nil, nil, err
	}
	closers = append(closers, func() {
		if err := sess.Close(); err != nil {
			c.Logger.Warn("session ended with error", "err", err)
		}
	})
	return sess, release, nil
}

// =============================================================================
// Watcher - shared by the plain and interactive views
// =============================================================================

type watcher struct {
	sess   *session.Session
	cfg    layout.Config
	output string
	logger *log.Logger
}

// treeSummary is what the views show about the current state.
type treeSummary struct {
	Name        string
	GraphID     string
	Revision    uint64
	Persons     []tree.Person
	Generations map[string]int
	Edges       int
	Pending     int
	Hubs        int
	Unplaced    int
	Fallbacks   int
	Messages    int
}

// summarize lays out the current tree and, with an output path, writes
// the diagram.
func (w *watcher) summarize() (treeSummary, error) {
	st := w.sess.Store()
	snap := st.Snapshot()
	d := w.sess.Diagram(w.cfg)
	l := graph.FromDiagram(w.sess.GraphID(), w.sess.Name(), d)

	s := treeSummary{
		Name:        w.sess.Name(),
		GraphID:     w.sess.GraphID(),
		Revision:    st.Revision(),
		Persons:     snap.Persons(),
		Generations: tree.Generations(snap),
		Edges:       snap.EdgeCount(),
		Pending:     len(st.Pending()),
		Hubs:        len(l.Hubs),
		Unplaced:    len(l.Unplaced),
		Fallbacks:   l.Fallbacks(),
	}
	if conv := w.sess.Conversation(); conv != nil {
		s.Messages = conv.Len()
	}

	if w.output != "" {
		if err := writeDiagram(w.output, l); err != nil {
			return s, err
		}
	}
	return s, nil
}

func writeDiagram(path string, l graph.Layout) error {
	var opts []svg.Option
	if l.Name != "" {
		opts = append(opts, svg.WithTitle(l.Name))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, svg.Render(l, opts...), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, filepath.Clean(path))
}

// runPlain logs a summary after every change until ctx ends or the
// session closes.
func (w *watcher) runPlain(ctx context.Context) error {
	changes, stop := w.sess.Store().Watch()
	defer stop()

	report := func() error {
		s, err := w.summarize()
		if err != nil {
			return err
		}
		w.logger.Info("tree updated",
			"revision", s.Revision,
			"persons", len(s.Persons),
			"edges", s.Edges,
			"pending", s.Pending,
			"unplaced", s.Unplaced)
		return nil
	}
	if err := report(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := report(); err != nil {
				return err
			}
		}
	}
}
