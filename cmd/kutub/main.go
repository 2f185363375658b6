package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kutub-ai/cli/config"
	"github.com/kutub-ai/cli/internal/correct"
	"github.com/kutub-ai/cli/internal/ingest"
	"github.com/kutub-ai/cli/internal/invoke"
	"github.com/kutub-ai/cli/internal/ollama"
	"github.com/kutub-ai/cli/internal/query"
	"github.com/kutub-ai/cli/internal/registry"
	"github.com/kutub-ai/cli/internal/retrieve"
	"github.com/kutub-ai/cli/internal/tui"
	"github.com/kutub-ai/cli/internal/vectorstore"
)

const usage = `kutub - question answering over your PDF library

Usage:
  kutub [-migrate] [-v] <command> [arguments]

Commands:
  ingest <file.pdf> [...]   parse, embed and index PDFs
  ask [-docs id,id] <question>
                            answer a single question
  chat [-docs id,id]        interactive chat
  docs                      list indexed documents
  select <doc-id>           include a document in default searches
  unselect <doc-id>         exclude a document from default searches
  sweep [-aggressive] <doc-id>
                            re-run text correction over a document
  rm <doc-id>               delete a document and its chunks
  models                    list models available on the model service
`

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func main() {
	var (
		migrateFlag = flag.Bool("migrate", false, "Run database migrations and exit")
		verboseFlag = flag.Bool("v", false, "Verbose logging")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(*verboseFlag)
	defer logger.Sync()

	ctx := context.Background()

	if *migrateFlag {
		store, err := vectorstore.New(cfg.Database.ConnectionString, cfg.Embeddings.Dimension)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error running migrations: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations completed successfully")
		return
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "ingest":
		err = app.cmdIngest(ctx, args)
	case "ask":
		err = app.cmdAsk(ctx, args)
	case "chat":
		err = app.cmdChat(ctx, args)
	case "docs":
		err = app.cmdDocs(ctx)
	case "select":
		err = app.cmdSelect(ctx, args, true)
	case "unselect":
		err = app.cmdSelect(ctx, args, false)
	case "sweep":
		err = app.cmdSweep(ctx, args)
	case "rm":
		err = app.cmdRemove(ctx, args)
	case "models":
		err = app.cmdModels(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// app wires the full stack for the lifetime of one command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	client    *ollama.Client
	registry  *registry.Store
	chunks    *vectorstore.Store
	invoker   *invoke.Invoker
	analyzer  *query.Analyzer
	engine    *retrieve.Engine
	builder   *retrieve.ContextBuilder
	corrector *correct.Corrector
	reasoner  *retrieve.Reasoner
	pipeline  *ingest.Pipeline
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	reg, err := registry.NewStore(cfg.Registry.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	chunks, err := vectorstore.New(cfg.Database.ConnectionString, cfg.Embeddings.Dimension)
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("connect to vector store: %w", err)
	}

	client := ollama.NewClient(cfg.Ollama.BaseURL)
	invoker := invoke.New(client, cfg.Models.Text, cfg.Models.Vision, cfg.Models.Embed,
		cfg.Embeddings.Dimension, logger)

	analyzer := query.NewAnalyzer(invoker, logger)
	engine := retrieve.NewEngine(chunks, invoker, retrieve.Options{
		TopK:            cfg.Retrieval.TopK,
		MinChunkChars:   cfg.Retrieval.MinChunkChars,
		SimilarityFloor: cfg.Retrieval.SimilarityFloor,
	}, logger)
	builder := retrieve.NewContextBuilder(cfg.Retrieval.ContextTokens)

	corrector := correct.New(invoker, chunks, cfg.Correction.BatchSize,
		time.Duration(cfg.Correction.InterBatchDelaySec)*time.Second, logger)

	reasoner := retrieve.NewReasoner(engine, analyzer, invoker, corrector, builder, logger)

	var inlineCorrector ingest.TextCorrector
	if cfg.Processing.CorrectOnIngest {
		inlineCorrector = corrector
	}
	pipeline := ingest.New(reg, chunks, invoker, inlineCorrector, ingest.Options{
		ChunkSize:       cfg.Processing.ChunkSize,
		ChunkOverlap:    cfg.Processing.ChunkOverlap,
		MinPageChars:    cfg.Processing.MinPageChars,
		OCRScale:        cfg.Processing.OCRScale,
		InterPageDelay:  time.Duration(cfg.Processing.InterPageDelayMS) * time.Millisecond,
		QuotaBackoff:    time.Duration(cfg.Processing.QuotaBackoffSec) * time.Second,
		CorrectOnIngest: cfg.Processing.CorrectOnIngest,
	}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		registry:  reg,
		chunks:    chunks,
		invoker:   invoker,
		analyzer:  analyzer,
		engine:    engine,
		builder:   builder,
		corrector: corrector,
		reasoner:  reasoner,
		pipeline:  pipeline,
	}, nil
}

func (a *app) close() {
	a.chunks.Close()
	a.registry.Close()
}

func (a *app) cmdIngest(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: kutub ingest <file.pdf> [...]")
	}
	for _, path := range args {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		fmt.Printf("%s %s\n", titleStyle.Render("Ingesting"), name)

		id, err := a.pipeline.IngestFile(ctx, path, name, func(page, total int) {
			fmt.Printf("\r  page %d/%d", page, total)
		})
		fmt.Println()
		if err != nil {
			fmt.Printf("  %s %v\n", warnStyle.Render("failed:"), err)
			continue
		}
		count, err := a.chunks.CountByDocument(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("  %s %d chunks indexed (id %s)\n", okStyle.Render("done:"), count, id)
	}
	return nil
}

// resolveDocs turns a -docs flag value into document ids, falling back to
// the registry's selected set.
func (a *app) resolveDocs(ctx context.Context, docsFlag string) ([]string, map[string]string, error) {
	names := make(map[string]string)
	all, err := a.registry.ListDocuments(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, doc := range all {
		names[doc.ID] = doc.DisplayName
	}

	if docsFlag != "" {
		ids := strings.Split(docsFlag, ",")
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
			if _, ok := names[ids[i]]; !ok {
				return nil, nil, fmt.Errorf("unknown document %q", ids[i])
			}
		}
		return ids, names, nil
	}

	selected, err := a.registry.ListSelected(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(selected) == 0 {
		return nil, nil, fmt.Errorf("no documents selected; run 'kutub docs' and 'kutub select <id>'")
	}
	ids := make([]string, 0, len(selected))
	for _, doc := range selected {
		ids = append(ids, doc.ID)
	}
	return ids, names, nil
}

// docLanguage estimates the library's dominant language from display names,
// used to decide when a query needs translation before search.
func docLanguage(ids []string, names map[string]string) query.Language {
	var all strings.Builder
	for _, id := range ids {
		all.WriteString(names[id])
		all.WriteString(" ")
	}
	return query.DetectLanguage(all.String())
}

func (a *app) cmdAsk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	docsFlag := fs.String("docs", "", "Comma-separated document ids (default: selected)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: kutub ask [-docs id,id] <question>")
	}

	docIDs, names, err := a.resolveDocs(ctx, *docsFlag)
	if err != nil {
		return err
	}
	docLang := docLanguage(docIDs, names)
	responseLang := string(query.DetectLanguage(question))

	analysis, err := a.analyzer.Analyze(ctx, question, docLang)
	if err != nil {
		return err
	}

	var (
		contextText string
		confidence  float64
		result      *retrieve.Result
	)
	if retrieve.IsComplex(question, analysis) && a.cfg.Retrieval.MaxHops > 1 {
		composite, err := a.reasoner.ReasonOrRetrieve(ctx, question, docIDs, names,
			docLang, a.cfg.Retrieval.MaxHops, responseLang, false, false)
		if err != nil {
			return err
		}
		contextText = composite.Context
		confidence = composite.Confidence
		fmt.Println(dimStyle.Render(fmt.Sprintf("multihop: %d hops, %d chunks, confidence %.2f",
			composite.Hops, composite.ChunksUsed, composite.Confidence)))
	} else {
		result, err = a.engine.Retrieve(ctx, analysis, docIDs, true, true)
		if err != nil {
			return err
		}
		contextText = a.builder.BuildContext(result, names)
		confidence = result.Confidence
		fmt.Println(dimStyle.Render(fmt.Sprintf("%s: %d chunks, confidence %.2f",
			result.Strategy, len(result.Chunks), result.Confidence)))
	}

	prompt := a.builder.BuildPrompt(contextText, question, confidence, responseLang)
	if _, err := a.invoker.GenerateAnswerStream(ctx, prompt, func(chunk string) {
		fmt.Print(chunk)
	}); err != nil {
		return err
	}
	fmt.Println()

	if result != nil && len(result.Chunks) > 0 {
		fmt.Println()
		fmt.Println(titleStyle.Render("Sources"))
		for _, group := range retrieve.GroupByDocument(result.Chunks) {
			pages := make([]string, 0, len(group.Pages))
			for _, pg := range group.Pages {
				pages = append(pages, fmt.Sprintf("%d", pg.PageNumber))
			}
			fmt.Printf("  %s (%s) p. %s\n", names[group.DocumentID],
				group.Tier, strings.Join(pages, ", "))
		}
	}
	return nil
}

func (a *app) cmdChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	docsFlag := fs.String("docs", "", "Comma-separated document ids (default: selected)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	docIDs, names, err := a.resolveDocs(ctx, *docsFlag)
	if err != nil {
		return err
	}

	return tui.Run(&tui.Backend{
		Analyzer: a.analyzer,
		Engine:   a.engine,
		Reasoner: a.reasoner,
		Builder:  a.builder,
		Invoker:  a.invoker,
		DocIDs:   docIDs,
		DocNames: names,
		DocLang:  docLanguage(docIDs, names),
		MaxHops:  a.cfg.Retrieval.MaxHops,
	})
}

func (a *app) cmdDocs(ctx context.Context) error {
	docs, err := a.registry.ListDocuments(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents indexed. Run 'kutub ingest <file.pdf>'.")
		return nil
	}
	for _, doc := range docs {
		mark := " "
		if doc.IsSelected {
			mark = okStyle.Render("*")
		}
		fmt.Printf("%s %s  %s\n", mark, doc.ID, titleStyle.Render(doc.DisplayName))
		fmt.Printf("    %s\n", dimStyle.Render(fmt.Sprintf("%s, %d pages, %d chunks",
			doc.EmbeddingStatus, doc.TotalPages, doc.ChunksCount)))
	}
	return nil
}

func (a *app) cmdSelect(ctx context.Context, args []string, selected bool) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: kutub select|unselect <doc-id>")
	}
	doc, err := a.registry.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("unknown document %q", args[0])
	}
	return a.registry.SetSelected(ctx, args[0], selected)
}

func (a *app) cmdSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	aggressive := fs.Bool("aggressive", false, "Send every chunk to the model, not only suspect ones")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: kutub sweep [-aggressive] <doc-id>")
	}

	report, err := a.corrector.SweepDocument(ctx, fs.Arg(0), *aggressive)
	if err != nil {
		return err
	}
	fmt.Printf("examined %d, suspect %d, corrected %d, failed %d\n",
		report.Examined, report.Suspect, report.Corrected, report.Failed)
	return nil
}

func (a *app) cmdModels(ctx context.Context) error {
	models, err := a.client.ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Println("No models installed.")
		return nil
	}
	for _, m := range models {
		fmt.Printf("%s  %s\n", titleStyle.Render(m.Name),
			dimStyle.Render(fmt.Sprintf("%.1f GB", float64(m.Size)/1e9)))
	}
	return nil
}

func (a *app) cmdRemove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: kutub rm <doc-id>")
	}
	id := args[0]
	doc, err := a.registry.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("unknown document %q", id)
	}
	if err := a.chunks.DeleteByDocument(ctx, id); err != nil {
		return err
	}
	if err := a.registry.DeleteDocument(ctx, id); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", doc.DisplayName)
	return nil
}
