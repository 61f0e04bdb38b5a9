package categories

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billtracker/internal/auth"
	"billtracker/internal/changefeed"
	"billtracker/internal/core"
	"billtracker/internal/remote"
	"billtracker/internal/remote/memory"
)

var alice = &core.User{ID: "alice"}

func newTestCatalog(t *testing.T, repo remote.CategoryRepository, user *core.User) (*Catalog, *changefeed.Broker) {
	t.Helper()
	broker := changefeed.NewBroker()
	c := NewCatalog(repo, auth.Fixed{User: user}, broker)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c, broker
}

func TestAddCustomCategoryAppearsOnceTitleCased(t *testing.T) {
	c, _ := newTestCatalog(t, memory.New(), alice)

	name, err := c.Add(context.Background(), "Gym Membership")
	require.NoError(t, err)
	assert.Equal(t, "gym membership", name)

	var matches []core.CategoryOption
	for _, opt := range c.ListAll() {
		if opt.Value == "gym membership" {
			matches = append(matches, opt)
		}
	}
	require.Len(t, matches, 1)
	assert.Equal(t, "Gym Membership", matches[0].Label)
}

func TestListAllDefaultsThenSortedCustom(t *testing.T) {
	c, _ := newTestCatalog(t, memory.New(), alice)
	ctx := context.Background()

	for _, n := range []string{"pets", "gym", "car loan"} {
		_, err := c.Add(ctx, n)
		require.NoError(t, err)
	}

	all := c.ListAll()
	defaults := core.DefaultCategories()
	require.Len(t, all, len(defaults)+3)
	assert.Equal(t, defaults, all[:len(defaults)])

	var custom []string
	for _, opt := range all[len(defaults):] {
		custom = append(custom, opt.Value)
	}
	assert.Equal(t, []string{"car loan", "gym", "pets"}, custom)
}

func TestAddRejections(t *testing.T) {
	c, _ := newTestCatalog(t, memory.New(), alice)
	ctx := context.Background()
	_, err := c.Add(ctx, "gym")
	require.NoError(t, err)

	tests := []struct {
		input string
		want  error
	}{
		{"   ", core.ErrCategoryRequired},
		{"a", core.ErrCategoryTooShort},
		{strings.Repeat("x", 21), core.ErrCategoryTooLong},
		{"Rent", core.ErrCategoryExists},
		{"GYM", core.ErrCategoryExists},
		{"food@home", core.ErrCategoryInvalidChars},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := c.Add(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, []string{"gym"}, c.Custom())
}

func TestRemoteDuplicateIsTranslated(t *testing.T) {
	repo := memory.New()
	c, _ := newTestCatalog(t, repo, alice)
	ctx := context.Background()

	// inserted elsewhere, mirror not yet refreshed
	require.NoError(t, repo.InsertCategory(ctx, alice.ID, "pets"))

	_, err := c.Add(ctx, "pets")
	assert.ErrorIs(t, err, core.ErrCategoryExists)
	assert.EqualError(t, err, "this category already exists")
}

func TestRemoveKeepsOthers(t *testing.T) {
	c, _ := newTestCatalog(t, memory.New(), alice)
	ctx := context.Background()
	for _, n := range []string{"gym", "pets"} {
		_, err := c.Add(ctx, n)
		require.NoError(t, err)
	}

	require.NoError(t, c.Remove(ctx, "gym"))
	assert.Equal(t, []string{"pets"}, c.Custom())
}

func TestNoUser(t *testing.T) {
	c, _ := newTestCatalog(t, memory.New(), nil)

	assert.Equal(t, core.DefaultCategories(), c.ListAll())
	_, err := c.Add(context.Background(), "gym")
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	assert.ErrorIs(t, c.Remove(context.Background(), "gym"), core.ErrNotAuthenticated)
}

type brokenRepo struct{ remote.CategoryRepository }

func (brokenRepo) ListCategories(context.Context, string) ([]string, error) {
	return nil, errors.New("timeout")
}

func TestFetchFailureIsRetained(t *testing.T) {
	c := NewCatalog(brokenRepo{}, auth.Fixed{User: alice}, changefeed.NewBroker())
	defer c.Close()

	err := c.Start(context.Background())
	var re *core.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, err, c.Err())
}

func TestChangeSignalTriggersRefetch(t *testing.T) {
	repo := memory.New()
	c, broker := newTestCatalog(t, repo, alice)

	require.NoError(t, repo.InsertCategory(context.Background(), alice.ID, "pets"))
	broker.Publish(changefeed.Change{Table: remote.TableCustomCategories})

	assert.Eventually(t, func() bool {
		return len(c.Custom()) == 1
	}, time.Second, 10*time.Millisecond)
}
