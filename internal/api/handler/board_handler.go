package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/d60-Lab/community-core/pkg/response"
)

type createBoardRequest struct {
	AuthorID int64  `json:"author_id,string" binding:"required"`
	Title    string `json:"title" binding:"required,max=200"`
	Content  string `json:"content"`
}

type updateBoardRequest struct {
	Title   string `json:"title" binding:"required,max=200"`
	Content string `json:"content"`
}

type likeRequest struct {
	UserID int64 `json:"user_id,string" binding:"required"`
}

type createCommentRequest struct {
	AuthorID int64  `json:"author_id,string" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// CreateBoard 发帖
// @Summary 创建帖子
// @Tags 帖子
// @Accept json
// @Produce json
// @Param request body createBoardRequest true "帖子内容"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/boards [post]
func (h *Handler) CreateBoard(c *gin.Context) {
	var req createBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	board, err := h.boardService.CreateBoard(c.Request.Context(), req.AuthorID, req.Title, req.Content)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"board_id": strconv.FormatInt(board.ID, 10)})
}

// GetBoard 查帖子与实时计数
// @Summary 查询帖子（实时计数视图）
// @Tags 帖子
// @Param id path string true "帖子ID"
// @Param user_id query string false "读者用户ID（查点赞状态）"
// @Success 200 {object} response.Response
// @Router /api/v1/boards/{id} [get]
func (h *Handler) GetBoard(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID, _ := strconv.ParseInt(c.Query("user_id"), 10, 64)
	counters, err := h.counterService.Counters(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "board not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"board_id": strconv.FormatInt(id, 10), "counters": counters})
}

// UpdateBoard 改帖
// @Summary 更新帖子
// @Tags 帖子
// @Param id path string true "帖子ID"
// @Param request body updateBoardRequest true "更新内容"
// @Success 200 {object} response.Response
// @Router /api/v1/boards/{id} [put]
func (h *Handler) UpdateBoard(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.boardService.UpdateBoard(c.Request.Context(), id, req.Title, req.Content); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "board not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}

// DeleteBoard 删帖
// @Summary 删除帖子
// @Tags 帖子
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Router /api/v1/boards/{id} [delete]
func (h *Handler) DeleteBoard(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.boardService.DeleteBoard(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "board not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}

// View 浏览上报（热路径，不触持久化存储）
// @Summary 浏览计数 +1
// @Tags 计数
// @Param id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Router /api/v1/boards/{id}/view [post]
func (h *Handler) View(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, err := h.counterService.View(c.Request.Context(), id); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}

// Like 点赞（幂等）
// @Summary 点赞
// @Tags 计数
// @Param id path string true "帖子ID"
// @Param request body likeRequest true "点赞用户"
// @Success 200 {object} response.Response
// @Router /api/v1/boards/{id}/like [put]
func (h *Handler) Like(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	applied, err := h.counterService.Like(c.Request.Context(), id, req.UserID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"applied": applied})
}

// Unlike 取消点赞（幂等）
// @Summary 取消点赞
// @Tags 计数
// @Param id path string true "帖子ID"
// @Param request body likeRequest true "用户"
// @Success 200 {object} response.Response
// @Router /api/v1/boards/{id}/like [delete]
func (h *Handler) Unlike(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	applied, err := h.counterService.Unlike(c.Request.Context(), id, req.UserID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"applied": applied})
}

// CreateComment 发评论
// @Summary 创建评论
// @Tags 评论
// @Param id path string true "帖子ID"
// @Param request body createCommentRequest true "评论内容"
// @Success 200 {object} response.Response
// @Router /api/v1/boards/{id}/comments [post]
func (h *Handler) CreateComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comment, err := h.boardService.CreateComment(c.Request.Context(), id, req.AuthorID, req.Content)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "board not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"comment_id": strconv.FormatInt(comment.ID, 10)})
}

// DeleteComment 删评论
// @Summary 删除评论
// @Tags 评论
// @Param id path string true "评论ID"
// @Success 200 {object} response.Response
// @Router /api/v1/comments/{id} [delete]
func (h *Handler) DeleteComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.boardService.DeleteComment(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "comment not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, nil)
}
