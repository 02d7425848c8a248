package handlers

import (
	"log/slog"
	"net/http"

	"forumcore/internal/services"

	"github.com/gin-gonic/gin"
)

type TopicHandler struct {
	forum *services.Forum
	log   *slog.Logger
}

func NewTopicHandler(forum *services.Forum, log *slog.Logger) *TopicHandler {
	return &TopicHandler{forum: forum, log: log}
}

// List 展示所有启用的话题
func (h *TopicHandler) List(c *gin.Context) {
	topics, err := h.forum.Topics.List(c.Request.Context())
	if err != nil {
		renderError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"topics": topics})
}
