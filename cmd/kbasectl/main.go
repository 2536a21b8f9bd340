package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbase/internal/config"
	"github.com/kailas-cloud/kbase/internal/domain"
	"github.com/kailas-cloud/kbase/internal/events"
	openaiTransport "github.com/kailas-cloud/kbase/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/kbase/internal/usecase/embedding"
	"github.com/kailas-cloud/kbase/internal/version"
	kbase "github.com/kailas-cloud/kbase/pkg/sdk"
)

type globalFlags struct {
	project    string
	configPath string
	jsonOutput bool
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "kbasectl",
		Short:         "Manage a kbase knowledge base from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.project, "project", "p", "", "Project ID")
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file path (default: config/<env>.yaml)")
	rootCmd.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(
		ingestCmd(&g),
		manualCmd(&g),
		crawlCmd(&g),
		searchCmd(&g),
		listCmd(&g),
		deleteCmd(&g),
		reembedCmd(&g),
		watchCmd(&g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func ingestCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload a file (txt, md, csv, pdf, docx, xlsx, xls, html)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, g, func(ctx context.Context, c *kbase.Client) error {
				res, err := c.Documents(g.project).Upload(ctx, filepath.Base(args[0]), data)
				if err != nil {
					return err
				}
				return printIngest(cmd.OutOrStdout(), g, res)
			})
		},
	}
}

func manualCmd(g *globalFlags) *cobra.Command {
	var filename string
	cmd := &cobra.Command{
		Use:   "manual [text]",
		Short: "Store typed-in text (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(b)
			}
			return withClient(cmd, g, func(ctx context.Context, c *kbase.Client) error {
				res, err := c.Documents(g.project).AddText(ctx, filename, text)
				if err != nil {
					return err
				}
				return printIngest(cmd.OutOrStdout(), g, res)
			})
		},
	}
	cmd.Flags().StringVar(&filename, "name", "", "Filename to store the text under")
	return cmd
}

func crawlCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl <url>",
		Short: "Fetch a web page and store its visible text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, g, func(ctx context.Context, c *kbase.Client) error {
				res, err := c.Documents(g.project).Crawl(ctx, args[0])
				if err != nil {
					return err
				}
				return printIngest(cmd.OutOrStdout(), g, res)
			})
		},
	}
}

func searchCmd(g *globalFlags) *cobra.Command {
	var (
		topK     int
		minScore float64
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank the project's documents against a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []kbase.SearchOption{kbase.WithTopK(topK)}
			if cmd.Flags().Changed("min-score") {
				opts = append(opts, kbase.WithMinScore(minScore))
			}
			return withClient(cmd, g, func(ctx context.Context, c *kbase.Client) error {
				res, err := c.Search(g.project).Query(ctx, args[0], opts...)
				if err != nil {
					return err
				}
				if g.jsonOutput {
					return printJSON(cmd.OutOrStdout(), res)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RANK\tSCORE\tID\tFILENAME")
				for i, h := range res.Hits {
					fmt.Fprintf(tw, "%d\t%.4f\t%d\t%s\n", i+1, h.Score, h.DocumentID, h.Filename)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "Maximum number of hits")
	cmd.Flags().Float64Var(&minScore, "min-score", 0.2, "Minimum cosine similarity")
	return cmd
}

func listCmd(g *globalFlags) *cobra.Command {
	var degraded bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the project's documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, g, func(ctx context.Context, c *kbase.Client) error {
				docs, err := c.Documents(g.project).List(ctx, degraded)
				if err != nil {
					return err
				}
				if g.jsonOutput {
					return printJSON(cmd.OutOrStdout(), docs)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSOURCE\tEMBEDDED\tCREATED\tFILENAME")
				for _, d := range docs {
					fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\n",
						d.ID, d.SourceType, d.Embedded, d.CreatedAt.Format("2006-01-02 15:04"), d.Filename)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&degraded, "degraded", false, "Only documents without an embedding")
	return cmd
}

func deleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			return withClient(cmd, g, func(ctx context.Context, c *kbase.Client) error {
				if err := c.Documents(g.project).Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
				return nil
			})
		},
	}
}

func reembedCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reembed",
		Short: "Retry the embedding of documents stored without one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, g, func(ctx context.Context, c *kbase.Client) error {
				results, err := c.Documents(g.project).Reembed(ctx)
				if err != nil {
					return err
				}
				if g.jsonOutput {
					return printJSON(cmd.OutOrStdout(), results)
				}
				var ok int
				for _, r := range results {
					if r.OK {
						ok++
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d: %v\n", r.DocumentID, r.Err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "embedded %d, failed %d\n", ok, len(results)-ok)
				return nil
			})
		},
	}
}

func watchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print document lifecycle events as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if cfg.Events.NATSURL == "" {
				return fmt.Errorf("events.nats_url is not configured")
			}
			nc, err := events.Connect(cfg.Events.NATSURL, "kbasectl")
			if err != nil {
				return err
			}
			defer nc.Close()

			subject := strings.TrimSuffix(cfg.Events.SubjectPrefix, ".") + ".documents.>"
			out := cmd.OutOrStdout()
			sub, err := events.Subscribe(nc, subject, func(_ context.Context, ev events.DocumentEvent) {
				if g.project != "" && ev.ProjectID != g.project {
					return
				}
				if g.jsonOutput {
					_ = printJSON(out, ev)
					return
				}
				line := fmt.Sprintf("%s\t%s\t%d\t%s", ev.At.Format("15:04:05"), ev.ProjectID, ev.DocumentID, ev.Filename)
				if ev.Reason != "" {
					line += "\t" + ev.Reason
				}
				fmt.Fprintln(out, line)
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
			defer func() { _ = sub.Unsubscribe() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
}

func loadConfig(g *globalFlags) (config.Config, error) {
	if g.configPath != "" {
		if err := os.Setenv("CONFIG_PATH", g.configPath); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(config.GetEnv())
}

// withClient opens an SDK client from the service config and runs fn.
func withClient(cmd *cobra.Command, g *globalFlags, fn func(context.Context, *kbase.Client) error) error {
	if g.project == "" {
		return fmt.Errorf("--project is required")
	}
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	opts, err := clientOptions(&cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	c, err := kbase.New(ctx, opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

// clientOptions maps the service config onto SDK options.
func clientOptions(cfg *config.Config) ([]kbase.Option, error) {
	var opts []kbase.Option
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return nil, fmt.Errorf("storage driver %q keeps nothing between runs; configure redis or postgres", cfg.Storage.Driver)
	case config.DriverRedis:
		if len(cfg.Storage.Redis.Addrs) == 0 {
			return nil, fmt.Errorf("storage.redis.addrs is empty")
		}
		opts = append(opts, kbase.WithRedis(cfg.Storage.Redis.Addrs[0], cfg.Storage.Redis.Password))
	case config.DriverPostgres:
		opts = append(opts, kbase.WithPostgres(cfg.Storage.Postgres.DSN))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	provider := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Provider:   cfg.Embedding.Provider,
		Dimensions: cfg.Embedding.Dimensions,
	}, zap.NewNop())
	instrumented := embeddinguc.NewInstrumentedEmbedder(provider, cfg.Embedding.Provider, cfg.Embedding.Model,
		embeddinguc.Options{
			Timeout:    config.Seconds(cfg.Embedding.TimeoutSec),
			MaxRetries: cfg.Embedding.MaxRetries,
		}, zap.NewNop())

	opts = append(opts,
		kbase.WithKeyPrefix(cfg.Storage.KeyPrefix),
		kbase.WithEmbedder(sdkEmbedder{inner: instrumented}),
		kbase.WithInstructions(cfg.Embedding.DocumentInstruction, cfg.Embedding.QueryInstruction),
		kbase.WithDisabledFormats(cfg.Extract.DisabledFormats...),
		kbase.WithReembedWorkers(cfg.Ingest.ReembedWorkers),
	)
	if cfg.Index.Driver == config.IndexDriverQdrant {
		opts = append(opts, kbase.WithQdrant(cfg.Index.Addr, cfg.Index.Collection, cfg.Embedding.Dimensions, cfg.Index.Insecure))
	}
	if cfg.Events.NATSURL != "" {
		opts = append(opts, kbase.WithNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix))
	}
	return opts, nil
}

// sdkEmbedder exposes the provider chain through the SDK's Embedder interface.
type sdkEmbedder struct {
	inner domain.Embedder
}

func (e sdkEmbedder) Embed(ctx context.Context, text string) (kbase.EmbeddingResult, error) {
	r, err := e.inner.Embed(ctx, text)
	if err != nil {
		return kbase.EmbeddingResult{}, err
	}
	return kbase.EmbeddingResult{Embedding: r.Embedding, TotalTokens: r.TotalTokens}, nil
}

func printIngest(w io.Writer, g *globalFlags, res kbase.IngestResult) error {
	if g.jsonOutput {
		out := struct {
			Document       kbase.Document `json:"document"`
			Embedded       bool           `json:"embedded"`
			EmbeddingError string         `json:"embedding_error,omitempty"`
		}{Document: res.Document, Embedded: res.Embedded}
		if res.EmbeddingError != nil {
			out.EmbeddingError = res.EmbeddingError.Error()
		}
		return printJSON(w, out)
	}
	fmt.Fprintf(w, "stored %d (%s)\n", res.Document.ID, res.Document.Filename)
	if !res.Embedded {
		fmt.Fprintf(w, "warning: not embedded: %v\n", res.EmbeddingError)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
