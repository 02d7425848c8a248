package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"forumcore/internal/models"
	"forumcore/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	slugAttempts   = 3
)

// PostInput is a new post. Kind decides which of Content, URL and ImageURL
// is required.
type PostInput struct {
	AuthorID uint            `validate:"required"`
	TopicID  uint            `validate:"required"`
	Title    string          `validate:"required,min=3,max=255"`
	Kind     models.PostKind `validate:"required,oneof=text link image"`
	Content  string          `validate:"required_if=Kind text,max=10000"`
	URL      string          `validate:"omitempty,url,max=500"`
	ImageURL string          `validate:"omitempty,url,max=500"`
	Draft    bool
}

// PostUpdate holds the fields to change; nil fields are left alone.
type PostUpdate struct {
	Title    *string
	Content  *string
	URL      *string
	ImageURL *string
	TopicID  *uint
}

type PostDetail struct {
	*models.Post
	UserVote *int `json:"user_vote"`
}

type ListQuery struct {
	Sort     string // recent, popular, top, hot
	Topic    string // topic slug
	Search   string
	Page     int
	PerPage  int
	ViewerID *uint
}

type PostPage struct {
	Posts    []PostDetail `json:"data"`
	Total    int64        `json:"total"`
	Page     int          `json:"current_page"`
	PerPage  int          `json:"per_page"`
	LastPage int          `json:"last_page"`
}

type PostService struct {
	store
	votes    *VoteService
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

func NewPostService(s store, votes *VoteService, log *slog.Logger) *PostService {
	return &PostService{
		store:    s,
		votes:    votes,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *PostService) check(in PostInput) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return validationError("invalid post: %s", strings.Join(fields, ", "))
		}
		return validationError("invalid post: %v", err)
	}
	switch {
	case in.Kind == models.PostKindLink && in.URL == "":
		return validationError("invalid post: link posts need a url")
	case in.Kind == models.PostKindImage && in.ImageURL == "":
		return validationError("invalid post: image posts need an image url")
	}
	return nil
}

func normalizeInput(in PostInput) PostInput {
	in.Title = utils.SanitizeText(in.Title)
	in.Content = utils.SanitizeText(in.Content)
	in.URL = strings.TrimSpace(in.URL)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	return in
}

// Create stores a new post. Unless in.Draft is set the post is published
// immediately and counts towards its topic.
func (s *PostService) Create(ctx context.Context, in PostInput) (*models.Post, error) {
	in = normalizeInput(in)
	if err := s.check(in); err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:    in.Title,
		Content:  in.Content,
		Kind:     in.Kind,
		URL:      in.URL,
		ImageURL: in.ImageURL,
		AuthorID: in.AuthorID,
		TopicID:  in.TopicID,
	}
	if !in.Draft {
		now := s.now()
		post.PublishedAt = &now
	}

	err := s.inTx(ctx, func(u *unitOfWork) error {
		if err := activeTopic(u.tx, in.TopicID); err != nil {
			return err
		}
		if err := insertWithSlug(u.tx, post); err != nil {
			return err
		}
		return u.publish(PostCreated{PostID: post.ID, TopicID: post.TopicID})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("post created", "post", post.ID, "topic", post.TopicID, "slug", post.Slug)
	return post, nil
}

func activeTopic(tx *gorm.DB, topicID uint) error {
	var topic models.Topic
	if err := tx.Select("id", "active").Take(&topic, topicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return validationError("topic %d does not exist", topicID)
		}
		return fmt.Errorf("load topic: %w", err)
	}
	if !topic.Active {
		return validationError("topic %d is not active", topicID)
	}
	return nil
}

// insertWithSlug derives the slug from the title and suffixes it on
// collision. Each attempt runs in a savepoint so a lost race does not poison
// the outer transaction.
func insertWithSlug(tx *gorm.DB, post *models.Post) error {
	base := slug.Make(post.Title)
	if base == "" {
		base = "post"
	}
	if len(base) > 280 {
		base = strings.Trim(base[:280], "-")
	}

	candidate := base
	var taken int64
	if err := tx.Model(&models.Post{}).Where("slug = ?", candidate).Count(&taken).Error; err != nil {
		return fmt.Errorf("check slug: %w", err)
	}
	if taken > 0 {
		candidate = base + "-" + utils.RandString(6)
	}

	for attempt := 0; ; attempt++ {
		post.Slug = candidate
		err := tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(post).Error
		})
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) || attempt+1 >= slugAttempts {
			return classifyStoreError("insert post", err)
		}
		candidate = base + "-" + utils.RandString(6)
	}
}

// Update edits a post owned by userID. Moving the post to another topic
// keeps both topics' post counts exact.
func (s *PostService) Update(ctx context.Context, postID, userID uint, upd PostUpdate) (*models.Post, error) {
	var post models.Post
	err := s.inTx(ctx, func(u *unitOfWork) error {
		if err := s.lock(u.tx, models.PostVotable(postID).LockKey()); err != nil {
			return err
		}
		if err := loadOwnedPost(u.tx, postID, userID, &post); err != nil {
			return err
		}

		in := PostInput{
			AuthorID: post.AuthorID,
			TopicID:  post.TopicID,
			Title:    post.Title,
			Kind:     post.Kind,
			Content:  post.Content,
			URL:      post.URL,
			ImageURL: post.ImageURL,
		}
		if upd.Title != nil {
			in.Title = *upd.Title
		}
		if upd.Content != nil {
			in.Content = *upd.Content
		}
		if upd.URL != nil {
			in.URL = *upd.URL
		}
		if upd.ImageURL != nil {
			in.ImageURL = *upd.ImageURL
		}
		if upd.TopicID != nil {
			in.TopicID = *upd.TopicID
		}
		in = normalizeInput(in)
		if err := s.check(in); err != nil {
			return err
		}

		oldTopic := post.TopicID
		if in.TopicID != oldTopic {
			if err := activeTopic(u.tx, in.TopicID); err != nil {
				return err
			}
		}

		err := u.tx.Model(&post).Updates(map[string]any{
			"title":     in.Title,
			"content":   in.Content,
			"url":       in.URL,
			"image_url": in.ImageURL,
			"topic_id":  in.TopicID,
		}).Error
		if err != nil {
			return classifyStoreError("update post", err)
		}
		post.Title, post.Content, post.URL, post.ImageURL, post.TopicID =
			in.Title, in.Content, in.URL, in.ImageURL, in.TopicID

		if in.TopicID != oldTopic {
			return u.publish(PostTopicChanged{PostID: post.ID, From: oldTopic, To: in.TopicID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// SetPublished publishes or unpublishes a post owned by userID. Setting the
// current state again is a no-op.
func (s *PostService) SetPublished(ctx context.Context, postID, userID uint, published bool) (*models.Post, error) {
	var post models.Post
	err := s.inTx(ctx, func(u *unitOfWork) error {
		if err := s.lock(u.tx, models.PostVotable(postID).LockKey()); err != nil {
			return err
		}
		if err := loadOwnedPost(u.tx, postID, userID, &post); err != nil {
			return err
		}
		if post.Published() == published {
			return nil
		}

		var at *time.Time
		if published {
			now := s.now()
			at = &now
		}
		if err := u.tx.Model(&post).Update("published_at", at).Error; err != nil {
			return fmt.Errorf("update published_at: %w", err)
		}
		post.PublishedAt = at

		if published {
			return u.publish(PostPublished{PostID: post.ID, TopicID: post.TopicID})
		}
		return u.publish(PostUnpublished{PostID: post.ID, TopicID: post.TopicID})
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Delete removes a post owned by userID together with its comments, views
// and every vote cast on the post or its comments.
func (s *PostService) Delete(ctx context.Context, postID, userID uint) error {
	err := s.inTx(ctx, func(u *unitOfWork) error {
		if err := s.lock(u.tx, models.PostVotable(postID).LockKey()); err != nil {
			return err
		}
		var post models.Post
		if err := loadOwnedPost(u.tx, postID, userID, &post); err != nil {
			return err
		}

		commentIDs := u.tx.Model(&models.Comment{}).Select("id").Where("post_id = ?", postID)
		if err := u.tx.
			Where("votable_type = ? AND votable_id = ?", models.VotablePost, postID).
			Or("votable_type = ? AND votable_id IN (?)", models.VotableComment, commentIDs).
			Delete(&models.Vote{}).Error; err != nil {
			return fmt.Errorf("delete votes: %w", err)
		}
		if err := u.tx.Where("post_id = ?", postID).Delete(&models.View{}).Error; err != nil {
			return fmt.Errorf("delete views: %w", err)
		}
		if err := u.tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if err := u.tx.Delete(&post).Error; err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		return u.publish(PostDeleted{PostID: post.ID, TopicID: post.TopicID})
	})
	if err != nil {
		return err
	}
	s.log.Info("post deleted", "post", postID, "by", userID)
	return nil
}

func loadOwnedPost(tx *gorm.DB, postID, userID uint, dst *models.Post) error {
	if err := tx.Take(dst, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundError("post %d does not exist", postID)
		}
		return fmt.Errorf("load post: %w", err)
	}
	if dst.AuthorID != userID {
		return authorizationError("post %d is not owned by user %d", postID, userID)
	}
	return nil
}

// Get loads a post by slug. Drafts are only visible to their author.
func (s *PostService) Get(ctx context.Context, postSlug string, viewerID *uint) (*PostDetail, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Preload("Topic").Where("slug = ?", postSlug).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError("post %q does not exist", postSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	if !post.Published() && (viewerID == nil || *viewerID != post.AuthorID) {
		return nil, notFoundError("post %q does not exist", postSlug)
	}

	detail := &PostDetail{Post: &post}
	if viewerID != nil {
		if detail.UserVote, err = s.votes.UserVote(ctx, *viewerID, models.PostVotable(post.ID)); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// List returns one page of published posts, pinned posts first.
func (s *PostService) List(ctx context.Context, q ListQuery) (*PostPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}

	query := s.db.WithContext(ctx).Model(&models.Post{}).Where("posts.published_at IS NOT NULL")

	if q.Topic != "" {
		var topic models.Topic
		err := s.db.WithContext(ctx).Select("id").Where("slug = ?", q.Topic).Take(&topic).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("topic %q does not exist", q.Topic)
		}
		if err != nil {
			return nil, fmt.Errorf("load topic: %w", err)
		}
		query = query.Where("posts.topic_id = ?", topic.ID)
	}

	if search := strings.TrimSpace(q.Search); search != "" {
		like := "%" + search + "%"
		topicIDs := s.db.Model(&models.Topic{}).Select("id").Where("name LIKE ?", like)
		query = query.Where(
			s.db.Where("posts.title LIKE ?", like).
				Or("posts.content LIKE ?", like).
				Or("posts.topic_id IN (?)", topicIDs),
		)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	query = query.Order("posts.pinned DESC")
	switch q.Sort {
	case "popular":
		query = query.Order("posts.score DESC")
	case "top":
		query = query.Order("posts.score DESC").Order("posts.created_at DESC")
	case "hot":
		query = query.Order("posts.hot_rank DESC")
	default:
		query = query.Order("posts.created_at DESC")
	}
	query = query.Order("posts.id DESC")

	var posts []models.Post
	err := query.Preload("Topic").
		Offset((q.Page - 1) * q.PerPage).Limit(q.PerPage).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	var votes map[uint]int
	if q.ViewerID != nil {
		ids := make([]uint, len(posts))
		for i := range posts {
			ids[i] = posts[i].ID
		}
		if votes, err = s.votes.UserVotes(ctx, *q.ViewerID, models.VotablePost, ids); err != nil {
			return nil, err
		}
	}

	page := &PostPage{
		Posts:    make([]PostDetail, len(posts)),
		Total:    total,
		Page:     q.Page,
		PerPage:  q.PerPage,
		LastPage: int((total + int64(q.PerPage) - 1) / int64(q.PerPage)),
	}
	if page.LastPage < 1 {
		page.LastPage = 1
	}
	for i := range posts {
		page.Posts[i] = PostDetail{Post: &posts[i]}
		if d, ok := votes[posts[i].ID]; ok {
			page.Posts[i].UserVote = &d
		}
	}
	return page, nil
}
