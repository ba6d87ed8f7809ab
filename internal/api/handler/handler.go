package handler

import (
	"github.com/d60-Lab/community-core/internal/repository"
	"github.com/d60-Lab/community-core/internal/service"
)

// Handler 聚合各业务服务供路由使用
type Handler struct {
	boardService   *service.BoardService
	counterService *service.CounterService
	deadLetters    repository.DeadLetterRepository
}

func New(boardService *service.BoardService, counterService *service.CounterService, deadLetters repository.DeadLetterRepository) *Handler {
	return &Handler{boardService: boardService, counterService: counterService, deadLetters: deadLetters}
}
