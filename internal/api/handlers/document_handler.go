package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/cityrag/backend/internal/corpus"
	"github.com/cityrag/backend/internal/pipeline"
	"github.com/cityrag/backend/internal/scrape"
	"github.com/cityrag/backend/pkg/logger"
)

type DocumentHandler struct {
	pipeline *pipeline.Pipeline
	scraper  *scrape.Client
}

func NewDocumentHandler(p *pipeline.Pipeline, scraper *scrape.Client) *DocumentHandler {
	return &DocumentHandler{
		pipeline: p,
		scraper:  scraper,
	}
}

// UploadDocument ingests one page into the live index. The caller sends
// either pre-fetched HTML or just a URL to scrape.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		URL         string `json:"url"`
		HTMLContent string `json:"html_content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL is required",
		})
	}

	var (
		doc corpus.Document
		err error
	)
	if req.HTMLContent != "" {
		doc, err = scrape.ExtractPage(req.URL, req.HTMLContent)
	} else {
		doc, err = h.scraper.FetchPage(c.Context(), req.URL)
	}
	if err != nil {
		logger.Error("Failed to extract document", zap.String("url", req.URL), zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Failed to extract document content",
		})
	}

	chunks, err := h.pipeline.IngestDocument(c.Context(), doc)
	if err != nil {
		logger.Error("Failed to ingest document", zap.String("url", req.URL), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest document",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Document ingested successfully",
		"url":     req.URL,
		"chunks":  chunks,
	})
}
