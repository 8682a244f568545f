package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"icdlookup/internal"
	"icdlookup/internal/config"
	"icdlookup/internal/connectors"
	"icdlookup/internal/dataset"
	"icdlookup/internal/explain"
	"icdlookup/internal/listener"
	"icdlookup/internal/lookup"
	"icdlookup/internal/pipeline"
	"icdlookup/internal/schema"
	"icdlookup/internal/server"
	"icdlookup/internal/storage"
)

const lastLoadKey = "dataset.last_load"

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	keywords, err := schema.LoadRoleKeywords(cfg.RoleKeywordsFile)
	must(err)

	cache := dataset.NewCache(dataset.Options{Keywords: keywords, ExcludedSheet: cfg.DatasetExcludedSheet})
	cache.OnLoad = func(info dataset.LoadInfo) {
		err := db.InsertDatasetLoad(storage.DatasetLoad{
			Path:       info.Path,
			ModTime:    info.ModTime,
			Records:    info.Records,
			Excluded:   info.Excluded,
			Columns:    info.Columns,
			DurationMs: info.Duration.Milliseconds(),
		})
		if err != nil {
			logger.Warn("record dataset load", "path", info.Path, "err", err)
		}
		_ = db.SetMetadata(lastLoadKey, time.Now().UTC().Format(time.RFC3339))
	}
	tables := cache.Tables(cfg.DatasetPath)

	cmd := os.Args[1]
	switch cmd {
	case "search":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		q := queryFlags(fs, cfg)
		asJSON := fs.Bool("json", false, "print the page as JSON")
		_ = fs.Parse(os.Args[2:])
		if q.Text != "" && !lookup.ValidQuery(q.Text, cfg.MinQueryLength) {
			must(fmt.Errorf("query must be at least %d characters", cfg.MinQueryLength))
		}
		table, err := tables()
		must(err)
		page := lookup.Search(table, *q)
		if clamped := lookup.ClampPage(q.Page, page.TotalMatches, page.PageSize); clamped != page.Page {
			q.Page = clamped
			page = lookup.Search(table, *q)
		}
		if *asJSON {
			printJSON(page)
			return
		}
		fmt.Println(lookup.Caption(page))
		for _, rec := range page.Records {
			printRecord(rec)
		}
		if s := lookup.Suggest(table, q.Text, cfg.MinQueryLength, cfg.SuggestLimit); len(s) > 0 {
			fmt.Printf("suggestions: %s\n", strings.Join(s, ", "))
		}
	case "show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		code := fs.String("code", "", "code to show")
		text := fs.String("q", "", "limit related codes to this search")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*code) == "" {
			must(fmt.Errorf("--code is required"))
		}
		table, err := tables()
		must(err)
		rec, ok := lookup.FindCode(table, *code)
		if !ok {
			must(fmt.Errorf("code %s not found", *code))
		}
		matched := table.Records
		if strings.TrimSpace(*text) != "" {
			matched = lookup.Records(lookup.Rank(table, lookup.Query{Text: *text}))
		}
		fmt.Printf("code:     %s\n", rec.Code)
		fmt.Printf("short:    %s\n", rec.ShortDescription)
		fmt.Printf("long:     %s\n", rec.LongDescription)
		fmt.Printf("category: %s\n", rec.Category)
		fmt.Printf("chapter:  %s\n", rec.Chapter)
		if rec.Status != "" {
			fmt.Printf("status:   %s\n", rec.Status)
		}
		sev := lookup.Severity(rec)
		fmt.Printf("severity: %s (%.1f)\n", sev.Level, sev.Score)
		related := lookup.Related(matched, rec)
		if len(related) > 0 {
			fmt.Printf("related (%d):\n", len(related))
			for _, r := range related {
				printRecord(r)
			}
		}
	case "suggest":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		text := fs.String("q", "", "code prefix")
		_ = fs.Parse(os.Args[2:])
		table, err := tables()
		must(err)
		for _, code := range lookup.Suggest(table, *text, cfg.MinQueryLength, cfg.SuggestLimit) {
			fmt.Println(code)
		}
	case "chapters":
		table, err := tables()
		must(err)
		for _, ch := range lookup.Chapters(table) {
			fmt.Println(ch)
		}
	case "explain":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		code := fs.String("code", "", "code to explain")
		audience := fs.String("audience", "patient", "patient|clinician")
		_ = fs.Parse(os.Args[2:])
		aud, err := explain.ParseAudience(*audience)
		must(err)
		table, err := tables()
		must(err)
		rec, ok := lookup.FindCode(table, *code)
		if !ok {
			must(fmt.Errorf("code %s not found", *code))
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.AITimeoutMs)*time.Millisecond+5*time.Second)
		defer cancel()
		exp := newExplainer(cfg, db, logger).Explain(ctx, rec, aud)
		fmt.Printf("[%s] %s\n", exp.Source, exp.Text)
	case "export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		q := queryFlags(fs, cfg)
		out := fs.String("out", "", "output path (.csv or .xlsx)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		table, err := tables()
		must(err)
		records := lookup.Records(lookup.Rank(table, *q))
		must(exportRecords(records, *out))
		fmt.Printf("exported %d records to %s\n", len(records), *out)
	case "serve":
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if _, err := tables(); err != nil {
			logger.Warn("dataset not loaded at startup", "err", err)
		}
		srv := server.New(cfg, tables, newExplainer(cfg, db, logger), logger)
		must(srv.ListenAndServe(ctx))
	case "dataset:info":
		table, err := tables()
		must(err)
		info, _ := cache.Info(cfg.DatasetPath)
		fmt.Printf("dataset: %s\n", cfg.DatasetPath)
		fmt.Printf("records=%d excluded=%d chapters=%d\n", table.Len(), info.Excluded, len(lookup.Chapters(table)))
		fmt.Printf("columns: code=%q short=%q long=%q category=%q chapter=%q\n",
			table.Columns.Code, table.Columns.ShortDescription, table.Columns.LongDescription, table.Columns.Category, table.Columns.Chapter)
		if last, err := db.GetMetadata(lastLoadKey); err == nil && last != nil {
			fmt.Printf("last load: %s\n", *last)
		}
		loads, err := db.ListDatasetLoads(5)
		must(err)
		for _, l := range loads {
			fmt.Printf("  %s records=%d excluded=%d took=%dms (%s)\n", l.CreatedAt, l.Records, l.Excluded, l.DurationMs, filepath.Base(l.Path))
		}
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "input file path or raw text")
		inType := fs.String("type", "", "xlsx|pdf|eml|email_text|email_table")
		output := fs.String("output", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *input == "" || *inType == "" || *output == "" {
			must(fmt.Errorf("--input --type --output are required"))
		}
		items, err := pipeline.ExtractItemsFromInput(*inType, *input)
		must(err)
		table, err := tables()
		must(err)
		results := pipeline.NewResolver(table).ResolveAll(items)
		rows := make([]internal.LookupExportRow, 0, len(items))
		counts := map[internal.MatchStatus]int{}
		for i, item := range items {
			counts[results[i].Status]++
			rows = append(rows, pipeline.ToExportRow(item, results[i]))
		}
		must(pipeline.ExportRowsToXLSX(rows, *output))
		fmt.Printf("run done rows=%d ok=%d review=%d not_found=%d output=%s\n",
			len(rows), counts[internal.MatchOK], counts[internal.MatchReview], counts[internal.MatchNotFound], *output)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "imap", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		conn, err := connectors.NewMailConnector(ctx, cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d known=%d empty=%d\n", *provider, result.Fetched, result.Stored, result.Known, result.Empty)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "imap", "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		processor := pipeline.NewProcessingService(db, tables)
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(*provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d lines=%d ok=%d review=%d not_found=%d\n", res.EmailID, res.Processed, res.OK, res.Review, res.NotFound)
			return
		}
		processedEmails, processedLines, err := processor.ProcessPending(*batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d lines=%d\n", processedEmails, processedLines)
	case "mail:listen":
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		s := listener.NewService(db, cfg, tables, logger)
		must(s.Run(ctx))
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		emailID := fs.Int("emailId", 0, "internal email id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *emailID == 0 || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--emailId and --out are required"))
		}
		rows, err := db.GetExportRows(*emailID)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no export rows for emailId=%d", *emailID))
		}
		must(pipeline.ExportRowsToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	default:
		usage()
		os.Exit(1)
	}
}

func queryFlags(fs *flag.FlagSet, cfg config.Config) *lookup.Query {
	q := &lookup.Query{}
	fs.StringVar(&q.Text, "q", "", "search text (code or description)")
	fs.StringVar(&q.CategoryFilter, "category", "", "category prefix filter")
	fs.StringVar(&q.ChapterFilter, "chapter", "", "chapter name filter, \"all\" for none")
	fs.BoolVar(&q.ExactPrefix, "exact", false, "match code prefix only")
	fs.IntVar(&q.Page, "page", 1, "1-based page")
	fs.IntVar(&q.PageSize, "page-size", cfg.PageSize, "rows per page")
	return q
}

func newExplainer(cfg config.Config, db *storage.DB, logger *slog.Logger) *explain.Explainer {
	var completer explain.Completer
	if strings.TrimSpace(cfg.AIAPIKey) != "" {
		completer = explain.NewClient(cfg)
	}
	e := explain.NewExplainer(completer, db)
	e.OnError = func(code string, err error) {
		logger.Warn("explanation fell back to static text", "code", code, "err", err)
	}
	return e
}

func exportRecords(records []internal.CanonicalRecord, out string) error {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".xlsx":
		return pipeline.ExportRecordsXLSX(records, out)
	case ".csv":
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := pipeline.ExportRecordsCSV(f, records); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported export format: %s", out)
	}
}

func printRecord(rec internal.CanonicalRecord) {
	fmt.Printf("  %-8s %-60s %s\n", rec.Code, rec.ShortDescription, rec.Chapter)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage: icdlookup <command>")
	fmt.Println("commands:")
	fmt.Println("  search --q=diabetes [--category=E11] [--chapter=...] [--exact] [--page=1] [--page-size=30] [--json]")
	fmt.Println("  show --code=E119 [--q=...]")
	fmt.Println("  suggest --q=E11")
	fmt.Println("  chapters")
	fmt.Println("  explain --code=E119 --audience=patient|clinician")
	fmt.Println("  export --q=... --out=./out/results.csv|.xlsx")
	fmt.Println("  serve")
	fmt.Println("  dataset:info")
	fmt.Println("  run --input=... --type=xlsx|pdf|eml|email_text|email_table --output=...xlsx")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  export:xlsx --emailId=1 --out=./out/result.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
