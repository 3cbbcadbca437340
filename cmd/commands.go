package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fyerfyer/pdf-indexer/api"
	"github.com/fyerfyer/pdf-indexer/api/handler"
	"github.com/fyerfyer/pdf-indexer/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// newIngestCmd 处理指定的PDF
func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Segment, embed and store a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				result, err := a.pipeline.Process(ctx, args[0])
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			})
		},
	}
}

// newQueryCmd 对已入库的内容执行检索
func newQueryCmd(opts *rootOptions) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the collection for the units most similar to text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				k := topK
				if k <= 0 {
					k = a.cfg.Pipeline.TopK
				}
				results, err := a.pipeline.Query(ctx, args[0], k)
				if err != nil {
					return err
				}
				return printPayloads(cmd.OutOrStdout(), services.Payloads(results))
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (defaults to pipeline.top_k)")
	return cmd
}

// newServeCmd 启动HTTP服务
func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				gin.SetMode(a.cfg.Server.Mode)

				router := api.SetupRouter(
					handler.NewDocumentHandler(a.pipeline, a.runs, filepath.Join(os.TempDir(), "pdf-indexer")),
					handler.NewSearchHandler(a.pipeline),
				)

				srv := &http.Server{
					Addr:        a.cfg.Server.Addr(),
					Handler:     router,
					ReadTimeout: 30 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					a.logger.WithField("addr", srv.Addr).Info("Server is running")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- err
					}
					close(errCh)
				}()

				select {
				case err, ok := <-errCh:
					if ok {
						return fmt.Errorf("failed to start server: %w", err)
					}
					return nil
				case <-ctx.Done():
				}

				a.logger.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server forced to shutdown: %w", err)
				}
				a.logger.Info("Server exited")
				return nil
			})
		},
	}
}
