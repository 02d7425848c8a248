package router

import (
	"log/slog"

	"forumcore/internal/handlers"
	"forumcore/internal/metrics"
	"forumcore/internal/middleware"
	"forumcore/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const sessionName = "forum_session"

type Deps struct {
	DB            *gorm.DB
	Forum         *services.Forum
	Metrics       *metrics.Metrics
	Log           *slog.Logger
	SessionSecret string

	// TrustUserHeader lets LoadUser take the caller from X-User-ID.
	TrustUserHeader bool
}

// New builds the engine with the ambient middleware and every route.
func New(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Log))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}

	store := cookie.NewStore([]byte(deps.SessionSecret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(middleware.LoadUser(deps.TrustUserHeader))

	RegisterRoutes(r, deps)
	return r
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	// Handlers
	postHandler := handlers.NewPostHandler(deps.Forum, deps.Log)
	commentHandler := handlers.NewCommentHandler(deps.Forum, deps.Log)
	voteHandler := handlers.NewVoteHandler(deps.Forum, deps.Log)
	topicHandler := handlers.NewTopicHandler(deps.Forum, deps.Log)
	healthHandler := handlers.NewHealthHandler(deps.DB)

	// 运维 (Ops)
	r.GET("/healthz", healthHandler.Health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// 公共路由 (Public Routes)
	r.GET("/", postHandler.List)                        // 首页 - 帖子列表
	r.GET("/forum", postHandler.List)                   // 帖子列表
	r.GET("/topics", topicHandler.List)                 // 话题列表
	r.GET("/post/:slug", postHandler.Show)              // 帖子详情（记录浏览）
	r.GET("/posts/:id/comments", commentHandler.Thread) // 评论树

	// 受保护路由 (Protected Routes)
	authorized := r.Group("/")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.POST("/posts", postHandler.Create)                  // 发布帖子
		authorized.PUT("/posts/:id", postHandler.Update)               // 编辑帖子
		authorized.POST("/posts/:id/publish", postHandler.Publish)     // 发布草稿
		authorized.POST("/posts/:id/unpublish", postHandler.Unpublish) // 撤回为草稿
		authorized.DELETE("/posts/:id", postHandler.Delete)            // 删除帖子

		authorized.POST("/posts/:id/vote", voteHandler.VotePost)       // 帖子投票
		authorized.POST("/comments/:id/vote", voteHandler.VoteComment) // 评论投票

		authorized.POST("/posts/:id/comments", commentHandler.Store) // 发表评论
		authorized.PUT("/comments/:id", commentHandler.Update)       // 编辑评论
		authorized.DELETE("/comments/:id", commentHandler.Destroy)   // 删除评论
	}
}
