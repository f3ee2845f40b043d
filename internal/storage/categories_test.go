package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/kotoba/internal/domain"
)

func TestCategories(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	verbs, err := db.CreateCategory(ctx, learner, "verbs", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultCategoryColor, verbs.Color)
	assert.Equal(t, DefaultCategoryIcon, verbs.Icon)

	adj, err := db.CreateCategory(ctx, learner, "adjectives", "#ff0000", "🔥")
	require.NoError(t, err)

	_, err = db.CreateCategory(ctx, learner, "verbs", "", "")
	assert.Error(t, err, "names are unique per learner")
	_, err = db.CreateCategory(ctx, "someone_else", "verbs", "", "")
	assert.NoError(t, err)

	list, err := db.ListCategories(ctx, learner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "adjectives", list[0].Name)
	assert.Equal(t, "verbs", list[1].Name)

	color := "#00ff00"
	updated, err := db.UpdateCategory(ctx, learner, adj.ID, CategoryPatch{Color: &color})
	require.NoError(t, err)
	assert.Equal(t, "adjectives", updated.Name)
	assert.Equal(t, "#00ff00", updated.Color)
	assert.Equal(t, "🔥", updated.Icon)

	_, err = db.UpdateCategory(ctx, "someone_else", adj.ID, CategoryPatch{Color: &color})
	assert.ErrorIs(t, err, ErrNotFound)

	card := newCard("走る", "to run", "")
	card.CategoryID = verbs.ID
	require.NoError(t, db.CreateCard(ctx, card))

	bad := newCard("x", "y", "")
	bad.CategoryID = "missing"
	assert.ErrorIs(t, db.CreateCard(ctx, bad), ErrNotFound)

	got, err := db.ListCards(ctx, CardFilter{LearnerID: learner, CategoryID: verbs.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, verbs.ID, got[0].CategoryID)

	require.NoError(t, db.SetCardCategory(ctx, learner, card.ID, adj.ID))
	c, err := db.GetCard(ctx, learner, card.ID)
	require.NoError(t, err)
	assert.Equal(t, adj.ID, c.CategoryID)

	assert.ErrorIs(t, db.SetCardCategory(ctx, learner, card.ID, "missing"), ErrNotFound)
	assert.ErrorIs(t, db.SetCardCategory(ctx, learner, "missing", adj.ID), ErrNotFound)

	// Deleting a category keeps its cards.
	require.NoError(t, db.DeleteCategory(ctx, learner, adj.ID))
	c, err = db.GetCard(ctx, learner, card.ID)
	require.NoError(t, err)
	assert.Empty(t, c.CategoryID)
	assert.ErrorIs(t, db.DeleteCategory(ctx, learner, adj.ID), ErrNotFound)

	require.NoError(t, db.SetCardCategory(ctx, learner, card.ID, verbs.ID))
	require.NoError(t, db.SetCardCategory(ctx, learner, card.ID, ""))
	c, err = db.GetCard(ctx, learner, card.ID)
	require.NoError(t, err)
	assert.Empty(t, c.CategoryID)
}

func TestTags(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	a := newCard("赤", "red", "")
	a.Tags = []string{" color ", "n5", "color", ""}
	require.NoError(t, db.CreateCard(ctx, a))
	assert.Equal(t, []string{"color", "n5"}, a.Tags)

	b := newCard("青", "blue", "")
	require.NoError(t, db.CreateCard(ctx, b))

	tags, err := db.ListTags(ctx, learner)
	require.NoError(t, err)
	assert.Equal(t, []domain.TagCount{{Name: "color", Cards: 1}, {Name: "n5", Cards: 2}}, tags)

	set, err := db.SetCardTags(ctx, learner, b.ID, []string{"color", "adjective", "color"})
	require.NoError(t, err)
	assert.Equal(t, []string{"color", "adjective"}, set)

	_, err = db.SetCardTags(ctx, "someone_else", b.ID, []string{"x"})
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := db.RemoveTag(ctx, learner, "color")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tags, err = db.ListTags(ctx, learner)
	require.NoError(t, err)
	assert.Equal(t, []domain.TagCount{{Name: "adjective", Cards: 1}, {Name: "n5", Cards: 1}}, tags)

	got, err := db.GetCard(ctx, learner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"n5"}, got.Tags)

	n, err = db.RemoveTag(ctx, learner, "unused")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []string{}, NormalizeTags(nil))
}
