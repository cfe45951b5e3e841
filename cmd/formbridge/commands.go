package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/formbridge/formbridge/internal/async"
	"github.com/formbridge/formbridge/internal/common"
	"github.com/formbridge/formbridge/internal/export"
	"github.com/formbridge/formbridge/internal/extract"
	"github.com/formbridge/formbridge/internal/ingest"
	"github.com/formbridge/formbridge/internal/llm"
	"github.com/formbridge/formbridge/internal/llm/openai"
	"github.com/formbridge/formbridge/internal/pipeline"
	"github.com/formbridge/formbridge/internal/schema"
	"github.com/formbridge/formbridge/internal/server"
	"github.com/formbridge/formbridge/internal/store"
)

// deps is the shared wiring for every subcommand: the sqlite-backed schema
// registry, the engine, the exporter, and the optional LLM field source.
type deps struct {
	cfg      *common.Config
	logger   *slog.Logger
	store    *store.SchemaStore
	engine   *extract.Engine
	exporter *export.Service
	fields   llm.FieldSource
}

func buildDeps(logger *slog.Logger) (*deps, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.NewSchemaStore(cfg.Store.DataDir, logger)
	if err != nil {
		return nil, err
	}

	var fields llm.FieldSource
	if cfg.LLM.APIKey != "" {
		fields = openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			MaxRetries:  cfg.LLM.MaxRetries,
		}, logger)
	}

	return &deps{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		engine:   extract.NewEngine(logger, extract.PolicyFromOrder(cfg.Extract.ProvenanceOrder)),
		exporter: export.NewService(logger),
		fields:   fields,
	}, nil
}

func (d *deps) close() {
	if err := d.store.Close(); err != nil {
		d.logger.Warn("store close failed", "error", err)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "formbridge",
		Short:         "Schema-driven form extraction and reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(logger))
	root.AddCommand(newExtractCmd(logger))
	root.AddCommand(newSchemaCmd(logger))
	return root
}

func newServeCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when INBOX_DIR is set, the inbox watcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer d.close()
			return runServe(cmd.Context(), d)
		},
	}
}

func runServe(parent context.Context, d *deps) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(d.logger, d.store, d.engine, d.exporter, d.fields)
	httpSrv := &http.Server{
		Addr:              d.cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var queue *async.ProcessorQueue
	if d.cfg.Ingest.InboxDir != "" {
		proc := pipeline.NewProcessor(d.logger, d.store, d.engine, d.exporter, d.fields)
		queue = async.NewProcessorQueue(proc, d.logger,
			async.WithWorkers(6),
			async.WithQueueSize(512),
			async.WithProcessTimeout(2*time.Minute),
		)
		events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       []string{d.cfg.Ingest.InboxDir},
			InitialScan: true,
			Debounce:    d.cfg.Ingest.Debounce,
		})
		if err != nil {
			return err
		}
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case path, ok := <-events:
					if !ok {
						return
					}
					_ = queue.Enqueue(ctx, async.NewJob(path))
				case werr, ok := <-errs:
					if ok && werr != nil {
						d.logger.Error("watcher error", "error", werr)
					}
				}
			}
		}()
		d.logger.Info("inbox watcher running", "dir", d.cfg.Ingest.InboxDir)
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("formbridge listening", "addr", d.cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if queue != nil {
		queue.Shutdown(shutdownCtx)
	}
	return httpSrv.Shutdown(shutdownCtx)
}

func newExtractCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <textract-artifact>",
		Short: "Run one artifact through the pipeline and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer d.close()

			proc := pipeline.NewProcessor(d.logger, d.store, d.engine, d.exporter, d.fields)
			res, err := proc.Extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newSchemaCmd(logger *slog.Logger) *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage registered schemas",
	}

	schemaCmd.AddCommand(&cobra.Command{
		Use:   "put <key> <definition.json>",
		Short: "Register or replace a schema definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer d.close()

			body, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			def, err := schema.ParseDefinition(body)
			if err != nil {
				return err
			}
			return d.store.Put(cmd.Context(), args[0], def)
		},
	})

	schemaCmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a registered schema definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer d.close()

			def, err := d.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(def, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	})

	schemaCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered schema keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := buildDeps(logger)
			if err != nil {
				return err
			}
			defer d.close()

			keys, err := d.store.Keys(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	})

	return schemaCmd
}
