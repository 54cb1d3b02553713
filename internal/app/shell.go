package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"jobkb/internal/ingest"
	"jobkb/internal/kb"
	"jobkb/internal/retriever"
)

// Shell reads one line at a time from in. A line naming an existing file
// ingests it; ":strategy <name>" switches strategy; ":stats" lists documents;
// anything else is a query whose formatted context is written to out. base
// carries the top-k, filter and strategy applied to every query.
func (a *App) Shell(ctx context.Context, in io.Reader, out io.Writer, base retriever.Request) error {
	log.Println("Shell started")
	log.Println("Enter a question or a file path to ingest (one per line). Ctrl+C to exit.")

	scanner := bufio.NewScanner(in)

	const maxLineSize = 1024 * 1024
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	for {
		select {
		case <-ctx.Done():
			log.Println("Shutting down shell")
			return nil
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("stdin error: %w", err)
				}
				log.Println("stdin closed")
				return nil
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			base = a.handleLine(ctx, out, line, base)
		}
	}
}

func (a *App) handleLine(ctx context.Context, out io.Writer, line string, req retriever.Request) retriever.Request {
	switch {
	case strings.HasPrefix(line, ":strategy"):
		name := strings.TrimSpace(strings.TrimPrefix(line, ":strategy"))
		strategy, err := kb.ParseStrategy(name)
		if err != nil {
			log.Printf("❌ %v", err)
			return req
		}
		req.Strategy = strategy
		fmt.Fprintf(out, "strategy: %s\n", strategy)
		return req

	case line == ":stats":
		stats, err := a.Stats(ctx)
		if err != nil {
			log.Printf("❌ Stats error: %v", err)
			return req
		}
		for _, s := range stats {
			fmt.Fprintf(out, "%s\t%s\t%s\t%d chunks\n", s.DocumentName, s.JobType, s.Section, s.Chunks)
		}
		return req
	}

	if info, err := os.Stat(line); err == nil && !info.IsDir() {
		res, err := a.IngestDocument(ctx, ingest.Document{Path: line, JobType: req.Filter.JobType, Section: req.Filter.Section})
		if err != nil {
			log.Printf("❌ Ingestion failed: %v", err)
			return req
		}
		fmt.Fprintf(out, "ingested %s: %d chunks\n", res.DocumentName, res.ChunksWritten)
		return req
	}

	query := req
	query.Query = line
	results, err := a.Retrieve(ctx, query)
	if err != nil {
		log.Printf("❌ Search error: %v", err)
		return req
	}
	log.Printf("🔍 Found %d relevant chunks", len(results))
	fmt.Fprintln(out, a.FormatContext(results))
	return req
}
