package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"DaryoAI/models"
	"DaryoAI/pkg/cache"
	"DaryoAI/pkg/catalog"
	"DaryoAI/pkg/database"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

func newIngestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", DSN: ":memory:"}, true)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return db
}

const sampleCSV = "Heading,Content,Category\n" +
	"Elections,Vote on Sunday.,Politics\n" +
	"Budget,\"Parliament approves the 2027 budget.\",\"Politics, Economy\"\n" +
	",orphan content,Politics\n"

func TestParseCSV(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if got := rows[1].Categories; len(got) != 2 || got[0] != "Politics" || got[1] != "Economy" {
		t.Fatalf("categories not split: %v", got)
	}

	reordered := "category,content,heading\nSports,Derby ended.,Derby\n"
	rows, err = ParseCSV(strings.NewReader(reordered))
	if err != nil || rows[0].Heading != "Derby" || rows[0].Categories[0] != "Sports" {
		t.Fatalf("header order not honoured: %+v err=%v", rows, err)
	}

	if _, err := ParseCSV(strings.NewReader("title,body\nx,y\n")); !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
}

func TestReadRowsRejectsUnknownExtension(t *testing.T) {
	if _, err := ReadRows("corpus.json", strings.NewReader("{}")); !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", err)
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	data := [][]string{
		{"heading", "content", "category"},
		{"Derby", "Derby ended 2-1.", "Sports"},
	}
	for r, rec := range data {
		for c, v := range rec {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	rows, err := ReadRows("corpus.XLSX", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 1 || rows[0].Heading != "Derby" || rows[0].Categories[0] != "Sports" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestImportCreatesLinksAndUpdates(t *testing.T) {
	db := newIngestDB(t)
	ctx := context.Background()
	store := cache.NewMemoryStore(10)
	cat := catalog.New(db, store, time.Minute, nil)
	in := NewIngester(db, cat, nil)

	before, _ := cat.ListCategories(ctx)
	if before != "" {
		t.Fatalf("expected empty catalog, got %q", before)
	}

	rep, err := in.ImportFile(ctx, "corpus.csv", strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if rep != (Report{Created: 2, Skipped: 1, CategoriesCreated: 2}) {
		t.Fatalf("unexpected report %+v", rep)
	}

	listing, _ := cat.ListCategories(ctx)
	if listing != "id:(1)-category:(Politics);\nid:(2)-category:(Economy);" {
		t.Fatalf("catalog cache not invalidated: %q", listing)
	}
	budget, ok := cat.ArticleByID(ctx, "2")
	if !ok || !budget.InCategory(1) || !budget.InCategory(2) {
		t.Fatalf("expected Budget in Politics and Economy, got %+v", budget)
	}

	// re-upload replaces content and category links of existing headings
	update := "heading,content,category\nBudget,Revised budget.,Economy\n"
	rep, err = in.ImportFile(ctx, "corpus.csv", strings.NewReader(update))
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if rep != (Report{Updated: 1}) {
		t.Fatalf("unexpected report %+v", rep)
	}
	budget, _ = cat.ArticleByID(ctx, "2")
	if budget.Content != "Revised budget." || budget.InCategory(1) || !budget.InCategory(2) {
		t.Fatalf("article not updated: %+v", budget)
	}

	heads, _ := cat.ListHeadingsByCategory(ctx, 1)
	if heads != "id:(1)-heading:(Elections);" {
		t.Fatalf("unexpected Politics headings %q", heads)
	}

	var n int64
	db.Model(&models.AiData{}).Count(&n)
	if n != 2 {
		t.Fatalf("expected 2 articles, got %d", n)
	}
}

func TestImportNewHeadingsDoNotMissLookups(t *testing.T) {
	db := newIngestDB(t)
	misses := 0
	if err := db.Callback().Query().After("gorm:query").Register("count_not_found", func(tx *gorm.DB) {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			misses++
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	rep, err := NewIngester(db, nil, nil).Import(context.Background(), []Row{
		{Heading: "Elections", Content: "Vote on Sunday.", Categories: []string{"Politics"}},
		{Heading: "Derby", Content: "Derby ended 2-1.", Categories: []string{"Sports"}},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if rep.Created != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if misses != 0 {
		t.Fatalf("import raised %d record-not-found lookups", misses)
	}
}
