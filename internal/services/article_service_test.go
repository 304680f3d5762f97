package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oitdesk/oitdesk/internal/database/testutil"
)

func TestArticlePublishFlow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	articles, err := NewArticleService(db)
	require.NoError(t, err)
	author := seedUser(t, db, "writer")

	ctx := context.Background()
	article, err := articles.Create(ctx, CreateArticleInput{
		Title:    "How to reset your VPN profile",
		Body:     "Open the client, remove the profile, re-import it.",
		Category: "network",
		AuthorID: author.ID,
	})
	require.NoError(t, err)
	require.False(t, article.Published)

	// Drafts stay invisible to regular listing.
	_, total, err := articles.List(ctx, ArticleListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 0, total)

	article, err = articles.SetPublished(ctx, article.ID, true)
	require.NoError(t, err)
	require.True(t, article.Published)
	require.NotNil(t, article.PublishedAt)

	result, total, err := articles.List(ctx, ArticleListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, result, 1)
}

func TestArticleSearchAndViews(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	articles, err := NewArticleService(db)
	require.NoError(t, err)
	author := seedUser(t, db, "kb-author")

	ctx := context.Background()
	first, err := articles.Create(ctx, CreateArticleInput{
		Title:    "Printer queue stuck",
		Body:     "Restart the spooler service.",
		AuthorID: author.ID,
	})
	require.NoError(t, err)
	_, err = articles.SetPublished(ctx, first.ID, true)
	require.NoError(t, err)

	second, err := articles.Create(ctx, CreateArticleInput{
		Title:    "Password policy",
		Body:     "Minimum twelve characters.",
		AuthorID: author.ID,
	})
	require.NoError(t, err)
	_, err = articles.SetPublished(ctx, second.ID, true)
	require.NoError(t, err)

	result, total, err := articles.List(ctx, ArticleListOptions{
		Filters: ArticleFilters{Search: "spooler"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, first.ID, result[0].ID)

	loaded, err := articles.Get(ctx, first.ID, true)
	require.NoError(t, err)
	require.EqualValues(t, 1, loaded.Views)

	loaded, err = articles.Get(ctx, first.ID, true)
	require.NoError(t, err)
	require.EqualValues(t, 2, loaded.Views)
}

func TestArticleDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	articles, err := NewArticleService(db)
	require.NoError(t, err)
	author := seedUser(t, db, "cleaner")

	ctx := context.Background()
	article, err := articles.Create(ctx, CreateArticleInput{
		Title:    "Obsolete guide",
		AuthorID: author.ID,
	})
	require.NoError(t, err)

	require.NoError(t, articles.Delete(ctx, article.ID))
	require.ErrorIs(t, articles.Delete(ctx, article.ID), ErrArticleNotFound)

	_, err = articles.Get(ctx, article.ID, false)
	require.ErrorIs(t, err, ErrArticleNotFound)
}
