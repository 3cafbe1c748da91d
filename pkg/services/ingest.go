package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"DaryoAI/models"
	"DaryoAI/pkg/catalog"
	"DaryoAI/pkg/logger"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type, expected .csv or .xlsx")
	ErrMissingColumns  = errors.New("file must have heading, content and category columns")
)

// Row is one article of an upload. Categories are already split and trimmed.
type Row struct {
	Heading    string
	Content    string
	Categories []string
}

type Report struct {
	Created           int `json:"created"`
	Updated           int `json:"updated"`
	Skipped           int `json:"skipped"`
	CategoriesCreated int `json:"categories_created"`
}

// ReadRows parses an upload by file extension.
func ReadRows(filename string, r io.Reader) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx":
		return ParseXLSX(r)
	default:
		return nil, ErrUnsupportedFile
	}
}

// ParseCSV reads rows with a heading,content,category header. Column order
// is taken from the header.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rowsFromRecords(records)
}

// ParseXLSX reads the first sheet of a workbook.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrMissingColumns
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rowsFromRecords(records)
}

func rowsFromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, ErrMissingColumns
	}
	col := map[string]int{"heading": -1, "content": -1, "category": -1}
	for i, name := range records[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if key == "categories" {
			key = "category"
		}
		if _, ok := col[key]; ok && col[key] < 0 {
			col[key] = i
		}
	}
	for _, idx := range col {
		if idx < 0 {
			return nil, ErrMissingColumns
		}
	}

	cell := func(rec []string, i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := Row{
			Heading: cell(rec, col["heading"]),
			Content: cell(rec, col["content"]),
		}
		for _, c := range strings.Split(cell(rec, col["category"]), ",") {
			if c = strings.TrimSpace(c); c != "" {
				row.Categories = append(row.Categories, c)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Ingester writes uploaded rows into the corpus.
type Ingester struct {
	db      *gorm.DB
	catalog *catalog.Catalog
	log     *zap.Logger
}

func NewIngester(db *gorm.DB, cat *catalog.Catalog, log *zap.Logger) *Ingester {
	return &Ingester{db: db, catalog: cat, log: logger.OrNop(log)}
}

// Import creates or updates one article per row, keyed by heading, and links
// it to its categories, creating unknown ones. Rows without a heading or
// content are skipped. All rows are written in one transaction.
func (in *Ingester) Import(ctx context.Context, rows []Row) (Report, error) {
	var rep Report
	err := in.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		known := map[string]models.Category{}
		for _, row := range rows {
			if row.Heading == "" || row.Content == "" {
				rep.Skipped++
				continue
			}

			cats := make([]models.Category, 0, len(row.Categories))
			seen := map[string]bool{}
			for _, name := range row.Categories {
				if seen[name] {
					continue
				}
				seen[name] = true
				c, ok := known[name]
				if !ok {
					c = models.Category{Name: name}
					res := tx.Where(models.Category{Name: name}).FirstOrCreate(&c)
					if res.Error != nil {
						return fmt.Errorf("category %q: %w", name, res.Error)
					}
					if res.RowsAffected == 1 {
						rep.CategoriesCreated++
					}
					known[name] = c
				}
				cats = append(cats, c)
			}

			var article models.AiData
			res := tx.Where("heading = ?", row.Heading).Limit(1).Find(&article)
			switch {
			case res.Error != nil:
				return fmt.Errorf("load article %q: %w", row.Heading, res.Error)
			case res.RowsAffected == 0:
				article = models.AiData{Heading: row.Heading, Content: row.Content}
				if err := tx.Omit("Categories").Create(&article).Error; err != nil {
					return fmt.Errorf("create article %q: %w", row.Heading, err)
				}
				rep.Created++
			default:
				if err := tx.Model(&article).Update("content", row.Content).Error; err != nil {
					return fmt.Errorf("update article %q: %w", row.Heading, err)
				}
				rep.Updated++
			}
			if err := tx.Model(&article).Association("Categories").Replace(cats); err != nil {
				return fmt.Errorf("link categories of %q: %w", row.Heading, err)
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	if in.catalog != nil {
		in.catalog.Invalidate(ctx)
	}
	in.log.Info("corpus imported",
		zap.Int("created", rep.Created),
		zap.Int("updated", rep.Updated),
		zap.Int("skipped", rep.Skipped),
		zap.Int("categories_created", rep.CategoriesCreated),
	)
	return rep, nil
}

// ImportFile parses and imports an upload.
func (in *Ingester) ImportFile(ctx context.Context, filename string, r io.Reader) (Report, error) {
	rows, err := ReadRows(filename, r)
	if err != nil {
		return Report{}, err
	}
	return in.Import(ctx, rows)
}
