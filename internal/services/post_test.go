package services

import (
	"testing"

	"forumcore/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestScenarioVoteSequence(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(1, "Scenario")
	target := models.PostVotable(post.ID)
	const voterA, voterB = 10, 11

	steps := []struct {
		voter     uint
		direction int
		action    VoteAction
		score     int
	}{
		{voterA, models.Upvote, VoteCreated, 1},
		{voterB, models.Upvote, VoteCreated, 2},
		{voterA, models.Downvote, VoteUpdated, 0},
		{voterA, models.Downvote, VoteRemoved, 1},
	}
	for i, s := range steps {
		out, err := f.forum.CastVote(f.ctx, s.voter, target, s.direction)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, s.action, out.Action, "step %d", i)
		assert.Equal(t, s.score, out.Score, "step %d", i)
	}
	assert.Equal(t, 1, f.reloadPost(post.ID).Score)
}

func TestScenarioTopicReassignment(t *testing.T) {
	f := newFixture(t)
	t2 := f.newTopic("Elsewhere")

	p1 := f.newPost(1, "Moving post")
	assert.Equal(t, 1, f.reloadTopic(f.topic.ID).PostCount)
	assert.Equal(t, 0, f.reloadTopic(t2.ID).PostCount)

	moved, err := f.forum.Posts.Update(f.ctx, p1.ID, 1, PostUpdate{TopicID: &t2.ID})
	require.NoError(t, err)
	assert.Equal(t, t2.ID, moved.TopicID)
	assert.Equal(t, 0, f.reloadTopic(f.topic.ID).PostCount)
	assert.Equal(t, 1, f.reloadTopic(t2.ID).PostCount)
}

func TestCreatePostValidation(t *testing.T) {
	f := newFixture(t)
	inactive := models.Topic{Name: "Archive", Slug: "archive", Active: false}
	require.NoError(t, f.db.Create(&inactive).Error)

	base := PostInput{AuthorID: 1, TopicID: f.topic.ID, Title: "Valid title", Kind: models.PostKindText, Content: "body"}
	tests := []struct {
		name string
		mod  func(*PostInput)
	}{
		{"short title", func(in *PostInput) { in.Title = "ab" }},
		{"unknown kind", func(in *PostInput) { in.Kind = "video" }},
		{"text without content", func(in *PostInput) { in.Content = "" }},
		{"link without url", func(in *PostInput) { in.Kind = models.PostKindLink }},
		{"link with bad url", func(in *PostInput) { in.Kind = models.PostKindLink; in.URL = "not a url" }},
		{"image without image url", func(in *PostInput) { in.Kind = models.PostKindImage }},
		{"missing topic", func(in *PostInput) { in.TopicID = 9999 }},
		{"inactive topic", func(in *PostInput) { in.TopicID = inactive.ID }},
		{"missing author", func(in *PostInput) { in.AuthorID = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mod(&in)
			_, err := f.forum.Posts.Create(f.ctx, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	link, err := f.forum.Posts.Create(f.ctx, PostInput{
		AuthorID: 1, TopicID: f.topic.ID, Title: "A link", Kind: models.PostKindLink, URL: "https://example.com/a",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", link.URL)
}

func TestCreatePostSlugs(t *testing.T) {
	f := newFixture(t)

	a := f.newPost(1, "Hello World")
	b := f.newPost(1, "Hello World")
	c := f.newPost(1, "!!!")

	assert.Equal(t, "hello-world", a.Slug)
	assert.NotEqual(t, a.Slug, b.Slug)
	assert.Regexp(t, `^hello-world-[a-z0-9]{6}$`, b.Slug)
	assert.Equal(t, "post", c.Slug)
}

func TestPostOwnership(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(1, "Mine")

	_, err := f.forum.Posts.Update(f.ctx, post.ID, 2, PostUpdate{Title: ptr("Stolen title")})
	assert.ErrorIs(t, err, ErrAuthorization)
	_, err = f.forum.Posts.SetPublished(f.ctx, post.ID, 2, false)
	assert.ErrorIs(t, err, ErrAuthorization)
	assert.ErrorIs(t, f.forum.Posts.Delete(f.ctx, post.ID, 2), ErrAuthorization)
	assert.ErrorIs(t, f.forum.Posts.Delete(f.ctx, 9999, 1), ErrNotFound)

	updated, err := f.forum.Posts.Update(f.ctx, post.ID, 1, PostUpdate{Title: ptr("Still mine")})
	require.NoError(t, err)
	assert.Equal(t, "Still mine", updated.Title)
	assert.Equal(t, post.Slug, updated.Slug, "slugs are stable across edits")
}

func TestDeletePostRemovesPolymorphicVotes(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(1, "Doomed")
	keep := f.newPost(1, "Survivor")
	c := f.newComment(2, post.ID, nil)

	_, err := f.forum.Votes.CastVote(f.ctx, 3, models.PostVotable(post.ID), models.Upvote)
	require.NoError(t, err)
	_, err = f.forum.Votes.CastVote(f.ctx, 3, models.CommentVotable(c.ID), models.Upvote)
	require.NoError(t, err)
	_, err = f.forum.Votes.CastVote(f.ctx, 3, models.PostVotable(keep.ID), models.Upvote)
	require.NoError(t, err)
	_, err = f.forum.Views.RecordView(f.ctx, post.ID, AnonymousViewer("1.1.1.1", ""))
	require.NoError(t, err)

	require.NoError(t, f.forum.Posts.Delete(f.ctx, post.ID, 1))

	var votes []models.Vote
	require.NoError(t, f.db.Find(&votes).Error)
	require.Len(t, votes, 1)
	assert.Equal(t, keep.ID, votes[0].VotableID)

	var comments, views int64
	require.NoError(t, f.db.Model(&models.Comment{}).Count(&comments).Error)
	require.NoError(t, f.db.Model(&models.View{}).Count(&views).Error)
	assert.Zero(t, comments)
	assert.Zero(t, views)
}

func TestGetPost(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(1, "Readable")
	draft, err := f.forum.Posts.Create(f.ctx, PostInput{
		AuthorID: 1, TopicID: f.topic.ID, Title: "Secret draft", Kind: models.PostKindText, Content: "x", Draft: true,
	})
	require.NoError(t, err)

	_, err = f.forum.Votes.CastVote(f.ctx, 4, models.PostVotable(post.ID), models.Downvote)
	require.NoError(t, err)

	d, err := f.forum.Posts.Get(f.ctx, post.Slug, ptr(uint(4)))
	require.NoError(t, err)
	require.NotNil(t, d.UserVote)
	assert.Equal(t, -1, *d.UserVote)
	require.NotNil(t, d.Topic)
	assert.Equal(t, f.topic.Slug, d.Topic.Slug)

	_, err = f.forum.Posts.Get(f.ctx, draft.Slug, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.forum.Posts.Get(f.ctx, draft.Slug, ptr(uint(1)))
	assert.NoError(t, err, "authors see their drafts")
	_, err = f.forum.Posts.Get(f.ctx, "nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPosts(t *testing.T) {
	f := newFixture(t)
	other := f.newTopic("Robots")

	low := f.newPost(1, "Low scorer")
	high := f.newPost(1, "High scorer")
	pinned := f.newPost(1, "Pinned notice")
	robot, err := f.forum.Posts.Create(f.ctx, PostInput{
		AuthorID: 1, TopicID: other.ID, Title: "Robot news", Kind: models.PostKindText, Content: "beep",
	})
	require.NoError(t, err)
	_, err = f.forum.Posts.Create(f.ctx, PostInput{
		AuthorID: 1, TopicID: f.topic.ID, Title: "Hidden draft", Kind: models.PostKindText, Content: "x", Draft: true,
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Post{}).Where("id = ?", pinned.ID).Update("pinned", true).Error)

	for voter := uint(20); voter < 23; voter++ {
		_, err := f.forum.Votes.CastVote(f.ctx, voter, models.PostVotable(high.ID), models.Upvote)
		require.NoError(t, err)
	}
	_, err = f.forum.Votes.CastVote(f.ctx, 20, models.PostVotable(low.ID), models.Downvote)
	require.NoError(t, err)

	page, err := f.forum.Posts.List(f.ctx, ListQuery{Sort: "top", ViewerID: ptr(uint(20))})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	ids := make([]uint, len(page.Posts))
	for i, p := range page.Posts {
		ids[i] = p.ID
	}
	assert.Equal(t, pinned.ID, ids[0], "pinned first")
	assert.Equal(t, high.ID, ids[1])
	assert.Equal(t, low.ID, ids[len(ids)-1])
	require.NotNil(t, page.Posts[1].UserVote)
	assert.Equal(t, 1, *page.Posts[1].UserVote)

	page, err = f.forum.Posts.List(f.ctx, ListQuery{Topic: "robots"})
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, robot.ID, page.Posts[0].ID)

	page, err = f.forum.Posts.List(f.ctx, ListQuery{Search: "Robots"})
	require.NoError(t, err)
	require.Len(t, page.Posts, 1, "search matches topic names")

	page, err = f.forum.Posts.List(f.ctx, ListQuery{Search: "scorer", PerPage: 1, Page: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, 2, page.LastPage)
	assert.Len(t, page.Posts, 1)

	_, err = f.forum.Posts.List(f.ctx, ListQuery{Topic: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTopicListIsCachedAndInvalidated(t *testing.T) {
	f := newFixture(t)

	topics, err := f.forum.Topics.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, 0, topics[0].PostCount)

	f.newPost(1, "Bumps the counter")

	topics, err = f.forum.Topics.List(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, topics[0].PostCount, "post creation invalidates the cached list")

	got, err := f.forum.Topics.GetBySlug(f.ctx, f.topic.Slug)
	require.NoError(t, err)
	assert.Equal(t, f.topic.ID, got.ID)
	_, err = f.forum.Topics.GetBySlug(f.ctx, "none")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTopicListReturnsCopies(t *testing.T) {
	f := newFixture(t)

	a, err := f.forum.Topics.List(f.ctx)
	require.NoError(t, err)
	a[0].Name = "MUTATED"

	b, err := f.forum.Topics.List(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "General", b[0].Name)
}

func TestTopicListSkipsCacheAfterConcurrentInvalidation(t *testing.T) {
	f := newFixture(t)

	fired := false
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:invalidate_mid_read", func(tx *gorm.DB) {
		if !fired && tx.Statement.Table == "topics" {
			fired = true
			f.forum.Topics.Invalidate()
		}
	}))

	topics, err := f.forum.Topics.List(f.ctx)
	require.NoError(t, err)
	require.True(t, fired)
	assert.Len(t, topics, 1)

	_, cached := f.forum.Topics.cache.Get(topicListCacheKey)
	assert.False(t, cached, "a list read before the invalidation is not cached")

	_, err = f.forum.Topics.List(f.ctx)
	require.NoError(t, err)
	_, cached = f.forum.Topics.cache.Get(topicListCacheKey)
	assert.True(t, cached)
}
