package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/cityrag/backend/internal/pipeline"
	"github.com/cityrag/backend/pkg/logger"
)

type AskHandler struct {
	pipeline *pipeline.Pipeline
}

func NewAskHandler(p *pipeline.Pipeline) *AskHandler {
	return &AskHandler{
		pipeline: p,
	}
}

func (h *AskHandler) HandleAsk(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	resp := h.pipeline.Answer(c.Context(), req.Query)

	status := fiber.StatusOK
	if resp.Error != "" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}

func (h *AskHandler) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	records, err := h.pipeline.History(limit)
	if err != nil {
		logger.Error("Failed to load history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}
	if records == nil {
		records = []pipeline.HistoryEntry{}
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}

func (h *AskHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		AnswerID string `json:"answer_id"`
		Helpful  *bool  `json:"helpful"`
		Comment  string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.AnswerID == "" || req.Helpful == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "answer_id and helpful are required",
		})
	}

	if err := h.pipeline.Feedback(req.AnswerID, *req.Helpful, req.Comment); err != nil {
		logger.Error("Failed to store feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store feedback",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Feedback recorded",
	})
}

func (h *AskHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(h.pipeline.Stats(c.Context()))
}
