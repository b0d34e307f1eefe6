package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"notebook-rag/internal/answer"
	"notebook-rag/internal/chunker"
	"notebook-rag/internal/config"
	"notebook-rag/internal/embedding"
	"notebook-rag/internal/ingest"
	"notebook-rag/internal/llmservice"
	"notebook-rag/internal/models"
	"notebook-rag/internal/server"
	"notebook-rag/internal/store"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	if err := rootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "notebook-rag",
		Short:         "Notebook-scoped document Q&A service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configFilePath, "path to the yaml config file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(ingestCmd(&configPath))
	root.AddCommand(queryCmd(&configPath))
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.close()

			srv := server.New(app.cfg.Server, app.ingester, app.answerer, app.store)
			return srv.ListenAndServe()
		},
	}
}

func ingestCmd(configPath *string) *cobra.Command {
	var file, userID, notebookID string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a document from disk into a notebook",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.close()

			payload, err := os.ReadFile(file)
			if err != nil {
				return err
			}

			res, err := app.ingester.Run(cmd.Context(), ingest.Request{
				Payload:  payload,
				Filename: file,
				Tenant:   models.Tenant{UserID: userID, NotebookID: notebookID},
			})
			if err != nil {
				return err
			}
			log.Info().Int("chunks", res.ChunksProcessed).Str("file", file).Msg("ingested")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the document file")
	cmd.Flags().StringVar(&userID, "user", "", "user id owning the notebook")
	cmd.Flags().StringVar(&notebookID, "notebook", "", "notebook id")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("notebook")
	return cmd
}

func queryCmd(configPath *string) *cobra.Command {
	var userID, notebookID string

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a question against a notebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer app.close()

			resp, err := app.answerer.Answer(cmd.Context(), answer.Request{
				Query:  args[0],
				Tenant: models.Tenant{UserID: userID, NotebookID: notebookID},
			})
			if err != nil {
				return err
			}
			fmt.Println(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id owning the notebook")
	cmd.Flags().StringVar(&notebookID, "notebook", "", "notebook id")
	return cmd
}

type app struct {
	cfg      *config.Config
	store    store.Gateway
	ingester *ingest.Pipeline
	answerer *answer.Pipeline
	close    func()
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	gw, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder := embedding.NewClient(cfg.Embedding)

	model, err := llmservice.New(&cfg.LLM)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("building chat model: %w", err)
	}

	splitter := chunker.NewSplitter(cfg.RAG.ChunkSize, *cfg.RAG.ChunkOverlap)
	ingester := ingest.NewPipeline(splitter, embedder, gw, cfg.RAG.StrictIngest)
	answerer := answer.NewPipeline(
		embedder, gw, model,
		cfg.RAG.TopK,
		cfg.LLM.Retries,
		time.Duration(cfg.LLM.RetryDelayMS)*time.Millisecond,
	)

	return &app{
		cfg:      cfg,
		store:    gw,
		ingester: ingester,
		answerer: answerer,
		close:    closeStore,
	}, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Gateway, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		sqldb, err := store.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		pg := store.NewPostgres(sqldb, cfg.Database.Debug, cfg.Embedding.Dimension)
		if err := pg.InitSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("initializing schema: %w", err)
		}
		return pg, func() {
			if err := pg.Close(); err != nil {
				log.Error().Err(err).Msg("closing database")
			}
		}, nil
	case "chromem":
		c, err := store.NewChromem(cfg.Store.Path, cfg.Store.Collection, cfg.Embedding.Dimension)
		if err != nil {
			return nil, nil, fmt.Errorf("opening chromem store: %w", err)
		}
		return c, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
