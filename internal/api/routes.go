package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fourline-project/fourline/internal/client"
	"github.com/fourline-project/fourline/internal/history"
	"github.com/fourline-project/fourline/internal/session"
	"github.com/fourline-project/fourline/internal/util"
)

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"service":    "fourline",
		"connection": string(s.client.ConnectionStatus()),
	})
}

// handleGetSession returns the combined session and connection snapshot.
func (s *Server) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.client.Snapshot())
}

// handleGetBoard returns only the board and turn, for lightweight polling.
func (s *Server) handleGetBoard(c *gin.Context) {
	snap := s.client.Snapshot().Session
	if snap.Board == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active game"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"game_id":      snap.GameID,
		"board":        snap.Board,
		"current_turn": snap.CurrentTurn,
		"my_turn":      snap.MyTurn,
		"last_move":    snap.LastMove,
	})
}

// handleGetSystem returns host and process resource usage.
func (s *Server) handleGetSystem(c *gin.Context) {
	sysInfo := util.GetSystemInfo()
	procUsage, _ := util.GetProcessUsage()
	c.JSON(http.StatusOK, gin.H{
		"system":  sysInfo,
		"process": procUsage,
		"uptime":  int64(s.client.Uptime().Seconds()),
	})
}

// handleGetProfile returns the locally tracked lifetime counters.
func (s *Server) handleGetProfile(c *gin.Context) {
	if s.database == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profile store not available"})
		return
	}
	username := s.cfg.GetServerData().Username
	profile, err := s.database.GetProfile(username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no profile recorded yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile": profile,
		"games":   profile.Games(),
	})
}

// handleLeaderboard proxies the backend leaderboard feed.
func (s *Server) handleLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	entries, err := s.hist.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		s.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// handleHistory proxies the recent-games feed, defaulting to our own account.
func (s *Server) handleHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	player := c.DefaultQuery("player", s.cfg.GetServerData().DisplayName)
	games, err := s.hist.RecentGames(c.Request.Context(), player, limit)
	if err != nil {
		s.historyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (s *Server) historyError(c *gin.Context, err error) {
	if errors.Is(err, history.ErrUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history API not configured"})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

type queueRequest struct {
	Mode       string `json:"mode" binding:"required"`
	Difficulty string `json:"difficulty"`
}

// handleJoinQueue starts matchmaking.
func (s *Server) handleJoinQueue(c *gin.Context) {
	var req queueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.client.FindMatch(req.Mode, req.Difficulty); err != nil {
		s.intentError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// handleLeaveQueue withdraws a pending matchmaking request.
func (s *Server) handleLeaveQueue(c *gin.Context) {
	if err := s.client.CancelSearch(); err != nil {
		s.intentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

type moveRequest struct {
	Column *int `json:"column" binding:"required"`
}

// handleMove drops a disc.
func (s *Server) handleMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.client.MakeMove(*req.Column); err != nil {
		s.intentError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "move sent"})
}

// handleAbandon forfeits the current game.
func (s *Server) handleAbandon(c *gin.Context) {
	if err := s.client.Abandon(); err != nil {
		s.intentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "abandoned"})
}

type spectateRequest struct {
	GameID string `json:"game_id" binding:"required"`
}

// handleSpectate joins a running game as a spectator.
func (s *Server) handleSpectate(c *gin.Context) {
	var req spectateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.client.Watch(req.GameID); err != nil {
		s.intentError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "spectating"})
}

// handleLeaveSpectate leaves the spectated game.
func (s *Server) handleLeaveSpectate(c *gin.Context) {
	if err := s.client.LeaveSpectate(); err != nil {
		s.intentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// handleRequestRematch asks the opponent for a rematch.
func (s *Server) handleRequestRematch(c *gin.Context) {
	if err := s.client.RequestRematch(c.Request.Context()); err != nil {
		s.intentError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "rematch requested"})
}

type rematchResponseRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// handleRematchResponse answers a pending rematch request.
func (s *Server) handleRematchResponse(c *gin.Context) {
	var req rematchResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.client.RespondRematch(c.Request.Context(), *req.Accept); err != nil {
		s.intentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "responded"})
}

// intentError maps intent failures to HTTP statuses.
func (s *Server) intentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, client.ErrNotYourTurn),
		errors.Is(err, client.ErrColumnFull),
		errors.Is(err, client.ErrBusy),
		errors.Is(err, client.ErrNoActiveGame),
		errors.Is(err, client.ErrNotSpectating),
		errors.Is(err, session.ErrNoRematchAvailable),
		errors.Is(err, session.ErrRematchSpent),
		errors.Is(err, session.ErrNoRematchRequest):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
