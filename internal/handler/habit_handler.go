package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"habittracker/internal/model"
	habitsvc "habittracker/internal/service/habit"
	"habittracker/pkg/logger"
)

type HabitHandler struct {
	svc    *habitsvc.Service
	logger *zap.Logger
}

func NewHabitHandler(svc *habitsvc.Service, logger *zap.Logger) *HabitHandler {
	return &HabitHandler{svc: svc, logger: logger}
}

type habitRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Frequency   string   `json:"frequency"`
}

func (r habitRequest) input() model.HabitInput {
	return model.HabitInput{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Tags:        r.Tags,
		Frequency:   model.Frequency(r.Frequency),
	}
}

type completionRequest struct {
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

// CreateHabit handles POST /api/habits
func (h *HabitHandler) CreateHabit(c *gin.Context) {
	var req habitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	habit, err := h.svc.Create(c.Request.Context(), req.input())
	if err != nil {
		h.writeError(c, "CreateHabit", err)
		return
	}
	c.JSON(http.StatusCreated, habit)
}

// ListHabits handles GET /api/habits?category=&tag=&frequency=&q=
func (h *HabitHandler) ListHabits(c *gin.Context) {
	filter := model.HabitFilter{
		Category:  c.Query("category"),
		Tag:       c.Query("tag"),
		Frequency: model.Frequency(c.Query("frequency")),
		Search:    c.Query("q"),
	}

	habits, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, "ListHabits", err)
		return
	}
	c.JSON(http.StatusOK, habits)
}

func (h *HabitHandler) GetHabit(c *gin.Context) {
	habit, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "GetHabit", err)
		return
	}
	c.JSON(http.StatusOK, habit)
}

func (h *HabitHandler) ReplaceHabit(c *gin.Context) {
	var req habitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	habit, err := h.svc.Replace(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		h.writeError(c, "ReplaceHabit", err)
		return
	}
	c.JSON(http.StatusOK, habit)
}

func (h *HabitHandler) DeleteHabit(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, "DeleteHabit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "habit deleted"})
}

// UpdateCompletion handles PUT /api/habits/:id/complete
func (h *HabitHandler) UpdateCompletion(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	habit, err := h.svc.UpsertCompletion(c.Request.Context(), c.Param("id"), req.Date, req.Completed)
	if err != nil {
		h.writeError(c, "UpdateCompletion", err)
		return
	}
	c.JSON(http.StatusOK, habit)
}

// GetProgress handles GET /api/habits/:id/progress?startDate=&endDate=
func (h *HabitHandler) GetProgress(c *gin.Context) {
	entries, err := h.svc.QueryProgress(c.Request.Context(), c.Param("id"), c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		h.writeError(c, "GetProgress", err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *HabitHandler) GetStats(c *gin.Context) {
	summary, err := h.svc.Stats(c.Request.Context(), c.Param("id"), c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		h.writeError(c, "GetStats", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetLeaderboard handles GET /api/streaks?limit=
func (h *HabitHandler) GetLeaderboard(c *gin.Context) {
	limit := habitsvc.DefaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer", "field": "limit"})
			return
		}
		limit = n
	}

	top, err := h.svc.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, "GetLeaderboard", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"streaks": top})
}

func (h *HabitHandler) writeError(c *gin.Context, op string, err error) {
	log := logger.WithTrace(c.Request.Context(), h.logger).With(
		zap.String("op", op),
		zap.String("habit_id", c.Param("id")),
	)

	var verr *model.ValidationError
	switch {
	case errors.Is(err, model.ErrHabitNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "habit not found"})
	case errors.As(err, &verr):
		log.Info("Rejected invalid request", zap.String("field", verr.Field), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, habitsvc.ErrStreakBoardDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
