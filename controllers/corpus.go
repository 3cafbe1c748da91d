package controllers

import (
	"errors"
	"net/http"

	"DaryoAI/pkg/catalog"
	"DaryoAI/pkg/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxCorpusUpload = 20 << 20

// UploadCorpus bulk-imports a CSV or XLSX file sent as the "file" form field.
func UploadCorpus(ingester *services.Ingester, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCorpusUpload)
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "file is required"})
			return
		}
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "cannot read file"})
			return
		}
		defer f.Close()

		rep, err := ingester.ImportFile(c.Request.Context(), header.Filename, f)
		switch {
		case errors.Is(err, services.ErrUnsupportedFile), errors.Is(err, services.ErrMissingColumns):
			c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		case err != nil:
			log.Error("corpus upload", zap.String("file", header.Filename), zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"msg": "import failed: " + err.Error()})
		default:
			c.JSON(http.StatusOK, rep)
		}
	}
}

func ListCategories(cat *catalog.Catalog, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cats, err := cat.Categories(c.Request.Context())
		if err != nil {
			log.Error("list categories", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}
		c.JSON(http.StatusOK, cats)
	}
}

func ListArticles(cat *catalog.Catalog, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, limit := pageParams(c)
		items, total, err := cat.Articles(c.Request.Context(), offset, limit)
		if err != nil {
			log.Error("list articles", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "offset": offset, "limit": limit})
	}
}

// CatalogPreview shows the exact catalog text the selector sends to the
// model: categories, or the headings of ?category=<id>.
func CatalogPreview(cat *catalog.Catalog, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		raw := c.Query("category")
		if raw == "" {
			text, err := cat.ListCategories(ctx)
			if err != nil {
				log.Error("catalog preview", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"catalog": text})
			return
		}
		category, ok := cat.CategoryByID(ctx, raw)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"msg": "category not found"})
			return
		}
		text, err := cat.ListHeadingsByCategory(ctx, category.ID)
		if err != nil {
			log.Error("catalog preview", zap.Uint("category", category.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "db error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": category, "catalog": text})
	}
}
