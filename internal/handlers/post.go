package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"forumcore/internal/middleware"
	"forumcore/internal/models"
	"forumcore/internal/services"

	"github.com/gin-gonic/gin"
)

type PostHandler struct {
	forum *services.Forum
	log   *slog.Logger
}

func NewPostHandler(forum *services.Forum, log *slog.Logger) *PostHandler {
	return &PostHandler{forum: forum, log: log}
}

type createPostRequest struct {
	Title    string          `json:"title"`
	Type     models.PostKind `json:"type"`
	Content  string          `json:"content"`
	URL      string          `json:"url"`
	ImageURL string          `json:"image_url"`
	TopicID  uint            `json:"topic_id"`
	Draft    bool            `json:"draft"`
}

type updatePostRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	URL      *string `json:"url"`
	ImageURL *string `json:"image_url"`
	TopicID  *uint   `json:"topic_id"`
}

// List 帖子列表，支持 sort / topic / search / page
func (h *PostHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(services.DefaultPerPage)))
	sort := c.DefaultQuery("sort", "recent")

	result, err := h.forum.Posts.List(c.Request.Context(), services.ListQuery{
		Sort:     sort,
		Topic:    c.Query("topic"),
		Search:   c.Query("search"),
		Page:     page,
		PerPage:  perPage,
		ViewerID: middleware.OptionalUserID(c),
	})
	if err != nil {
		renderError(c, h.log, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"posts":          result,
		"current_sort":   sort,
		"current_topic":  c.Query("topic"),
		"current_search": c.Query("search"),
	})
}

// Show 帖子详情，同时记录一次浏览
func (h *PostHandler) Show(c *gin.Context) {
	ctx := c.Request.Context()
	viewer := middleware.OptionalUserID(c)

	detail, err := h.forum.Posts.Get(ctx, c.Param("slug"), viewer)
	if err != nil {
		renderError(c, h.log, err)
		return
	}

	identity := services.AnonymousViewer(c.ClientIP(), c.Request.UserAgent())
	if viewer != nil {
		identity = services.UserViewer(*viewer, c.ClientIP(), c.Request.UserAgent())
	}
	res, err := h.forum.Views.RecordView(ctx, detail.ID, identity)
	switch {
	case err != nil:
		// 浏览记录失败不影响阅读
		h.log.Warn("record view failed", "post", detail.ID, "err", err)
	case res.Counted:
		detail.ViewCount++
	}

	respond(c, http.StatusOK, gin.H{"post": detail})
}

// Create 发布帖子
func (h *PostHandler) Create(c *gin.Context) {
	var req createPostRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Type == "" {
		req.Type = models.PostKindText
	}

	post, err := h.forum.Posts.Create(c.Request.Context(), services.PostInput{
		AuthorID: userID(c),
		TopicID:  req.TopicID,
		Title:    req.Title,
		Kind:     req.Type,
		Content:  req.Content,
		URL:      req.URL,
		ImageURL: req.ImageURL,
		Draft:    req.Draft,
	})
	if err != nil {
		renderError(c, h.log, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"post": post, "message": "post created"})
}

// Update 编辑帖子，可以更换话题
func (h *PostHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req updatePostRequest
	if !bindJSON(c, &req) {
		return
	}

	post, err := h.forum.Posts.Update(c.Request.Context(), id, userID(c), services.PostUpdate{
		Title:    req.Title,
		Content:  req.Content,
		URL:      req.URL,
		ImageURL: req.ImageURL,
		TopicID:  req.TopicID,
	})
	if err != nil {
		renderError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"post": post, "message": "post updated"})
}

func (h *PostHandler) Publish(c *gin.Context)   { h.setPublished(c, true) }
func (h *PostHandler) Unpublish(c *gin.Context) { h.setPublished(c, false) }

func (h *PostHandler) setPublished(c *gin.Context, published bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	post, err := h.forum.Posts.SetPublished(c.Request.Context(), id, userID(c), published)
	if err != nil {
		renderError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"post": post})
}

// Delete 删除帖子及其评论、投票
func (h *PostHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.forum.Posts.Delete(c.Request.Context(), id, userID(c)); err != nil {
		renderError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "post deleted"})
}
