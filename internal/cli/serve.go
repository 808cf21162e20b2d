package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/kinship/pkg/cache"
	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/observability/prom"
	"github.com/matzehuels/kinship/pkg/session"
)

type serveFlags struct {
	addr         string
	file         string
	conversation string
}

// serveCommand creates the serve command, which exposes a mirrored tree
// and its diagram over HTTP.
func (c *CLI) serveCommand() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve [graph-id]",
		Short: "Serve a live tree and its diagram over HTTP",
		Long: `Serve a live tree and its diagram over HTTP.

The tree is mirrored from the backend like 'watch' does, or read from a
snapshot file with --file. Routes:

  GET    /healthz
  GET    /graph                 current tree as JSON
  GET    /diagram.{format}      json, svg, dot, png or pdf
  GET    /messages              mirrored conversation
  POST   /persons               add a person (local only)
  PATCH  /persons/{id}          edit a person (local only)
  DELETE /persons/{id}
  POST   /edges                 add a relationship (local only)
  DELETE /edges/{id}
  GET    /metrics               Prometheus metrics`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var graphID string
			if len(args) == 1 {
				graphID = args[0]
			}
			return c.runServe(cmd.Context(), graphID, f)
		},
	}

	cmd.Flags().StringVar(&f.addr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().StringVar(&f.file, "file", "", "serve a snapshot file instead of a shared tree")
	cmd.Flags().StringVar(&f.conversation, "conversation", "", "also mirror the messages of this conversation")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, graphID string, f serveFlags) error {
	sess, release, err := c.serveSession(ctx, graphID, f)
	if err != nil {
		return err
	}
	defer release()

	if c.Config.Serve.Metrics {
		prom.New(prometheus.DefaultRegisterer).Register()
	}

	runner, err := c.newRunner(false)
	if err != nil {
		return err
	}
	defer runner.Close()
	runner.Keyer = cache.NewScopedKeyer(runner.Keyer, "serve:"+sess.GraphID()+":")

	srv := newServer(sess, runner, c.pipelineOptions(), c.Logger)
	srv.metrics = c.Config.Serve.Metrics

	addr := c.Config.Serve.Addr
	if f.addr != "" {
		addr = f.addr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.routes(),
		ReadTimeout:  c.Config.Serve.ReadTimeout,
		WriteTimeout: c.Config.Serve.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Logger.Info("serving", "addr", addr, "graph", sess.GraphID())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveSession opens the session behind the server: a shared tree, or a
// local one filled from --file.
func (c *CLI) serveSession(ctx context.Context, graphID string, f serveFlags) (*session.Session, func(), error) {
	if f.file == "" {
		if graphID == "" {
			return nil, nil, kerrors.New(kerrors.ErrCodeInvalidInput, "pass a graph id or --file")
		}
		return c.openSession(ctx, graphID, f.conversation)
	}

	in, err := loadFile(f.file)
	if err != nil {
		return nil, nil, err
	}
	if in.Layout != nil {
		return nil, nil, kerrors.New(kerrors.ErrCodeInvalidInput, "%s is a layout, not a tree", f.file)
	}
	id := in.GraphID
	if id == "" {
		id = "local"
	}
	sess, err := session.Open(ctx, id, session.WithLogger(c.Logger))
	if err != nil {
		return nil, nil, err
	}
	st := sess.Store()
	st.SetNodes(in.Snapshot.Persons())
	st.SetEdges(in.Snapshot.Edges())
	return sess, func() { _ = sess.Close() }, nil
}
