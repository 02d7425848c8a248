package handlers

import (
	"log/slog"
	"net/http"

	"forumcore/internal/middleware"
	"forumcore/internal/services"

	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	forum *services.Forum
	log   *slog.Logger
}

func NewCommentHandler(forum *services.Forum, log *slog.Logger) *CommentHandler {
	return &CommentHandler{forum: forum, log: log}
}

type commentRequest struct {
	Content  string `json:"content"`
	ParentID *uint  `json:"parent_id"`
}

// Thread 返回帖子的完整评论树
func (h *CommentHandler) Thread(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	thread, err := h.forum.Comments.ListThread(c.Request.Context(), postID, middleware.OptionalUserID(c))
	if err != nil {
		renderError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"comments": thread})
}

// Store 发表评论或回复
func (h *CommentHandler) Store(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req commentRequest
	if !bindJSON(c, &req) {
		return
	}

	comment, err := h.forum.Comments.Create(c.Request.Context(), userID(c), postID, req.Content, req.ParentID)
	if err != nil {
		renderError(c, h.log, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"comment": comment, "message": "comment added"})
}

// Update 编辑自己的评论
func (h *CommentHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req commentRequest
	if !bindJSON(c, &req) {
		return
	}

	comment, err := h.forum.Comments.Update(c.Request.Context(), id, userID(c), req.Content)
	if err != nil {
		renderError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"comment": comment, "message": "comment updated"})
}

// Destroy 软删除评论，保留回复结构
func (h *CommentHandler) Destroy(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.forum.Comments.SoftDelete(c.Request.Context(), id, userID(c)); err != nil {
		renderError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "comment removed"})
}
