package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"party-game/internal/service"
)

// GameHandler 暴露只读的游戏题库
type GameHandler struct {
	catalog *service.CatalogService
}

func NewGameHandler(catalog *service.CatalogService) *GameHandler {
	return &GameHandler{catalog: catalog}
}

// ListGames 列出游戏，可用 ?category= 过滤
func (h *GameHandler) ListGames(c *gin.Context) {
	games, err := h.catalog.ListGames(c.Request.Context(), c.Query("category"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"games": games})
}

func (h *GameHandler) GetGame(c *gin.Context) {
	game, err := h.catalog.GetGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, game)
}
