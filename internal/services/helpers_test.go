package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"forumcore/internal/config"
	"forumcore/internal/db"
	"forumcore/internal/metrics"
	"forumcore/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *gorm.DB
	forum *Forum
	m     *metrics.Metrics
	topic models.Topic
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.Migrate(gdb))

	m := metrics.New()
	forum, err := New(gdb, config.Default().Forum, m, testLog)
	require.NoError(t, err)

	f := &fixture{t: t, ctx: context.Background(), db: gdb, forum: forum, m: m}
	f.topic = f.newTopic("General")
	return f
}

func (f *fixture) newTopic(name string) models.Topic {
	f.t.Helper()
	topic := models.Topic{Name: name, Slug: strings.ToLower(name), Active: true}
	require.NoError(f.t, f.db.Create(&topic).Error)
	return topic
}

func (f *fixture) newPost(authorID uint, title string) *models.Post {
	f.t.Helper()
	post, err := f.forum.Posts.Create(f.ctx, PostInput{
		AuthorID: authorID,
		TopicID:  f.topic.ID,
		Title:    title,
		Kind:     models.PostKindText,
		Content:  "body of " + title,
	})
	require.NoError(f.t, err)
	return post
}

func (f *fixture) newComment(authorID, postID uint, parentID *uint) *models.Comment {
	f.t.Helper()
	c, err := f.forum.Comments.Create(f.ctx, authorID, postID, "a comment", parentID)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) reloadPost(id uint) models.Post {
	f.t.Helper()
	var p models.Post
	require.NoError(f.t, f.db.Take(&p, id).Error)
	return p
}

func (f *fixture) reloadComment(id uint) models.Comment {
	f.t.Helper()
	var c models.Comment
	require.NoError(f.t, f.db.Take(&c, id).Error)
	return c
}

func (f *fixture) reloadTopic(id uint) models.Topic {
	f.t.Helper()
	var tp models.Topic
	require.NoError(f.t, f.db.Take(&tp, id).Error)
	return tp
}

func (f *fixture) voteCount(v models.Votable) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&models.Vote{}).
		Where("votable_type = ? AND votable_id = ?", v.Type, v.ID).Count(&n).Error)
	return n
}

func ptr[T any](v T) *T { return &v }
