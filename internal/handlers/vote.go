package handlers

import (
	"log/slog"
	"net/http"

	"forumcore/internal/models"
	"forumcore/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	forum *services.Forum
	log   *slog.Logger
}

func NewVoteHandler(forum *services.Forum, log *slog.Logger) *VoteHandler {
	return &VoteHandler{forum: forum, log: log}
}

type voteRequest struct {
	Type *int `json:"type" binding:"required"`
}

// VotePost 对帖子投票（再次提交相同方向即取消）
func (h *VoteHandler) VotePost(c *gin.Context) {
	h.vote(c, models.VotablePost)
}

// VoteComment 对评论投票
func (h *VoteHandler) VoteComment(c *gin.Context) {
	h.vote(c, models.VotableComment)
}

func (h *VoteHandler) vote(c *gin.Context, vt models.VotableType) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req voteRequest
	if !bindJSON(c, &req) {
		return
	}

	out, err := h.forum.CastVote(c.Request.Context(), userID(c), models.Votable{Type: vt, ID: id}, *req.Type)
	if err != nil {
		renderError(c, h.log, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"action":      out.Action,
		"votes_count": out.Score,
		"user_vote":   out.UserVote,
	})
}
