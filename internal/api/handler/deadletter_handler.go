package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/pkg/response"
)

// ListDeadLetters 死信巡检（人工排查入口，不支持自动重放）
// @Summary 死信列表
// @Tags 运维
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response
// @Router /api/v1/dead-letters [get]
func (h *Handler) ListDeadLetters(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	recs, err := h.deadLetters.List(c.Request.Context(), (page-1)*pageSize, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": recs})
}

// GetDeadLetter 按事件 ID 查死信详情
// @Summary 死信详情
// @Tags 运维
// @Param event_id path string true "事件ID"
// @Success 200 {object} response.Response
// @Router /api/v1/dead-letters/{event_id} [get]
func (h *Handler) GetDeadLetter(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Param("event_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	rec, err := h.deadLetters.GetByEventID(c.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "dead letter not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, rec)
}
