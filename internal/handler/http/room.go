package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"party-game/internal/domain"
	"party-game/internal/middleware"
	"party-game/internal/service"
)

// RoomHandler 封装了房间、回合和投票相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService   *service.RoomService
	turnService   *service.TurnService
	votingService *service.VotingService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService, turnService *service.TurnService, votingService *service.VotingService) *RoomHandler {
	return &RoomHandler{roomService: roomService, turnService: turnService, votingService: votingService}
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	GameID     string `json:"gameId" binding:"required"`
	MaxPlayers int    `json:"maxPlayers" binding:"omitempty,min=2,max=20"`
	Username   string `json:"username" binding:"omitempty,max=50"`
	Avatar     string `json:"avatar" binding:"omitempty,max=512"`
}

// JoinRoomRequest 定义加入房间请求的结构体
type JoinRoomRequest struct {
	Code     string `json:"code" binding:"required,len=6"`
	Username string `json:"username" binding:"omitempty,max=50"`
	Avatar   string `json:"avatar" binding:"omitempty,max=512"`
}

// JoinRoomResponse 定义加入房间成功的响应结构体
type JoinRoomResponse struct {
	Room        *domain.Room `json:"room"`
	AutoStarted bool         `json:"autoStarted"`
}

// SetTurnRequest 房主指定答题者
type SetTurnRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

// VoteRequest 投票请求
type VoteRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
}

// AnswerRequest 提交答案请求
type AnswerRequest struct {
	Answer     string `json:"answer" binding:"required,max=2000"`
	QuestionID string `json:"questionId"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req CreateRoomRequest
	if !bindJSON(c, &req) {
		return
	}
	username, avatar := profileDefaults(c, req.Username, req.Avatar)

	room, err := h.roomService.CreateRoom(c.Request.Context(), service.CreateRoomInput{
		HostID:     userID,
		Username:   username,
		Avatar:     avatar,
		GameID:     req.GameID,
		MaxPlayers: req.MaxPlayers,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, room)
}

// JoinRoom 处理通过邀请码加入房间的请求。房间恰好满员时自动开始游戏。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req JoinRoomRequest
	if !bindJSON(c, &req) {
		return
	}
	username, avatar := profileDefaults(c, req.Username, req.Avatar)
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "code": req.Code})

	room, shouldAutoStart, err := h.roomService.JoinRoomByCode(c.Request.Context(), req.Code, service.JoinInput{
		UserID:   userID,
		Username: username,
		Avatar:   avatar,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	resp := JoinRoomResponse{Room: room}
	if shouldAutoStart {
		started, ok, err := h.turnService.AutoStartRoom(c.Request.Context(), room.ID)
		if err != nil {
			// 加入已经成功，自动开局失败不影响本次响应
			logCtx.WithError(err).Warn("Handler.JoinRoom: Auto start failed")
		} else {
			resp.Room, resp.AutoStarted = started, ok
		}
	}
	SuccessResponse(c, http.StatusOK, resp)
}

// ValidateCode 检查邀请码是否对应一个可加入的房间
func (h *RoomHandler) ValidateCode(c *gin.Context) {
	summary, err := h.roomService.ValidateRoomCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, summary)
}

// GetRoom 返回房间状态，只有成员可以查看
func (h *RoomHandler) GetRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	room, err := h.roomService.EnsureMember(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// LeaveRoom 离开房间
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	room, err := h.roomService.LeaveRoom(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// DeleteRoom 房主终止房间
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	room, err := h.roomService.DeleteRoom(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// StartRoom 房主开始游戏
func (h *RoomHandler) StartRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	room, err := h.turnService.StartRoom(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// SetPlayerTurn 房主指定答题者
func (h *RoomHandler) SetPlayerTurn(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req SetTurnRequest
	if !bindJSON(c, &req) {
		return
	}
	room, err := h.turnService.SetPlayerTurn(c.Request.Context(), c.Param("id"), userID, req.PlayerID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// SubmitVote 为题目投票
func (h *RoomHandler) SubmitVote(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req VoteRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.votingService.SubmitVote(c.Request.Context(), c.Param("id"), userID, req.QuestionID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, result)
}

// SubmitAnswer 当前答题者提交答案
func (h *RoomHandler) SubmitAnswer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req AnswerRequest
	if !bindJSON(c, &req) {
		return
	}
	room, err := h.votingService.SubmitAnswer(c.Request.Context(), c.Param("id"), userID, req.Answer, req.QuestionID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// ListMyRooms 列出当前用户参与过的房间
func (h *RoomHandler) ListMyRooms(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	rooms, err := h.roomService.ListUserRooms(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

// profileDefaults 请求没有提供昵称/头像时使用用户资料中的值
func profileDefaults(c *gin.Context, username, avatar string) (string, string) {
	user := middleware.CurrentUser(c)
	if user == nil {
		return username, avatar
	}
	if username == "" {
		username = user.DisplayName
	}
	if avatar == "" {
		avatar = user.Avatar
	}
	return username, avatar
}
