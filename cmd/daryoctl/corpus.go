package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"DaryoAI/pkg/catalog"
	"DaryoAI/pkg/config"
	"DaryoAI/pkg/llm"
	"DaryoAI/pkg/prompt"
	"DaryoAI/pkg/selector"
	"DaryoAI/pkg/services"
)

func runIngest(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("ingest")
	path := fs.String("file", "", "CSV or XLSX file with heading, content and category columns")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("--file is required")
	}
	f, err := os.Open(*path)
	if err != nil {
		return err
	}
	defer f.Close()

	cat := catalog.New(env.db, nil, 0, env.log)
	rep, err := services.NewIngester(env.db, cat, env.log).ImportFile(ctx, *path, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "created %d, updated %d, skipped %d, new categories %d\n",
		rep.Created, rep.Updated, rep.Skipped, rep.CategoriesCreated)
	return nil
}

// probeResult is one row of the probe report.
type probeResult struct {
	Question     string
	CategoryID   uint
	Category     string
	ArticleID    uint
	Heading      string
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
	Err          string
}

func runProbe(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("probe")
	path := fs.String("file", "", "questions: JSON array of strings or {\"q\": ...} objects, or one question per line")
	outPath := fs.String("out", "", "write the CSV report here instead of stdout")
	only := fs.String("only", "", "comma-separated 1-based indexes or substrings to run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("--file is required")
	}
	data, err := os.ReadFile(*path)
	if err != nil {
		return err
	}
	questions, err := parseQuestions(data)
	if err != nil {
		return err
	}
	questions = filterQuestions(questions, *only)

	completer, err := llm.New(llm.Config{
		Provider:        config.LLMProvider,
		APIKey:          config.LLMAPIKey,
		Model:           config.LLMModel,
		BaseURL:         config.LLMBaseURL,
		Temperature:     config.LLMTemperature,
		MaxOutputTokens: config.LLMMaxOutputTokens,
		Timeout:         time.Duration(config.LLMTimeoutSeconds) * time.Second,
	}, env.log)
	if err != nil {
		return err
	}
	prompts := prompt.Default()
	if config.PromptsFile != "" {
		if prompts, err = prompt.LoadFile(config.PromptsFile); err != nil {
			return err
		}
	}
	cat := catalog.New(env.db, nil, 0, env.log)
	sel := selector.NewModelSelector(cat, completer, prompt.NewAssembler(prompts, false), env.log)

	results := make([]probeResult, 0, len(questions))
	for _, q := range questions {
		start := time.Now()
		s, err := sel.Resolve(ctx, q)
		r := probeResult{
			Question:     q,
			InputTokens:  s.Usage.InputTokens,
			OutputTokens: s.Usage.OutputTokens,
			Duration:     time.Since(start),
		}
		if err != nil {
			r.Err = err.Error()
		}
		if s.Category != nil {
			r.CategoryID, r.Category = s.Category.ID, s.Category.Name
		}
		if s.Article != nil {
			r.ArticleID, r.Heading = s.Article.ID, s.Article.Heading
		}
		results = append(results, r)
	}

	out := env.out
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return writeProbeCSV(out, results)
}

// parseQuestions accepts ["q1", ...], [{"q": "..."}, ...] or plain lines.
func parseQuestions(data []byte) ([]string, error) {
	var out []string
	var arr []any
	if err := json.Unmarshal(data, &arr); err == nil {
		for _, v := range arr {
			switch t := v.(type) {
			case string:
				out = append(out, strings.TrimSpace(t))
			case map[string]any:
				if q, ok := t["q"].(string); ok {
					out = append(out, strings.TrimSpace(q))
				}
			}
		}
	} else {
		for _, line := range strings.Split(string(data), "\n") {
			out = append(out, strings.TrimSpace(line))
		}
	}
	kept := out[:0]
	for _, q := range out {
		if q != "" {
			kept = append(kept, q)
		}
	}
	if len(kept) == 0 {
		return nil, errors.New("no questions found")
	}
	return kept, nil
}

func filterQuestions(questions []string, only string) []string {
	only = strings.TrimSpace(only)
	if only == "" {
		return questions
	}
	wanted := map[int]bool{}
	var subs []string
	for _, tok := range strings.Split(only, ",") {
		v := strings.ToLower(strings.TrimSpace(tok))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			wanted[n-1] = true
		} else {
			subs = append(subs, v)
		}
	}
	var out []string
	for i, q := range questions {
		keep := wanted[i]
		for _, s := range subs {
			if !keep && strings.Contains(strings.ToLower(q), s) {
				keep = true
			}
		}
		if keep {
			out = append(out, q)
		}
	}
	return out
}

func writeProbeCSV(w io.Writer, results []probeResult) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"question", "category_id", "category", "article_id", "heading", "input_tokens", "output_tokens", "duration_ms", "error"})
	for _, r := range results {
		_ = cw.Write([]string{
			r.Question,
			strconv.FormatUint(uint64(r.CategoryID), 10),
			r.Category,
			strconv.FormatUint(uint64(r.ArticleID), 10),
			r.Heading,
			strconv.FormatInt(r.InputTokens, 10),
			strconv.FormatInt(r.OutputTokens, 10),
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
			r.Err,
		})
	}
	cw.Flush()
	return cw.Error()
}
