package matchmaker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/anon-relay/internal/domain"
	"github.com/oggyb/anon-relay/internal/logger"
	"github.com/oggyb/anon-relay/internal/matchmaker"
)

const operator = int64(777)

func setupDispatcher(t *testing.T) (*fixture, *matchmaker.Dispatcher) {
	t.Helper()
	f := setup(t)
	return f, matchmaker.NewDispatcher(f.mm, operator, logger.Discard())
}

func TestNormalizeCommand(t *testing.T) {
	assert.Equal(t, "next", matchmaker.NormalizeCommand("/next"))
	assert.Equal(t, "stop", matchmaker.NormalizeCommand(" /Stop@AnonBot "))
	assert.Equal(t, "search", matchmaker.NormalizeCommand("search"))
}

// TestRegistrationFlow walks /start, a bad selection, then a valid one.
func TestRegistrationFlow(t *testing.T) {
	f, d := setupDispatcher(t)
	ctx := context.Background()

	require.NoError(t, d.OnCommand(ctx, 1, "/start", nil))
	assert.Equal(t, matchmaker.GenderKeyboard, f.tr.last(1).Keyboard)

	require.NoError(t, d.OnText(ctx, 1, "Alice", "maybe"))
	assert.Equal(t, matchmaker.GenderKeyboard, f.tr.last(1).Keyboard)

	require.NoError(t, d.OnText(ctx, 1, "Alice", domain.FemaleLabel))
	u := f.user(t, 1)
	assert.Equal(t, "Alice", u.DisplayName)
	assert.Equal(t, domain.GenderFemale, u.Gender)
	assert.Equal(t, matchmaker.MainKeyboard, f.tr.last(1).Keyboard)
}

func TestMenuButtonsAreNotRelayed(t *testing.T) {
	f, d := setupDispatcher(t)
	ctx := context.Background()
	f.register(t, 1, 2)

	require.NoError(t, d.OnText(ctx, 1, "", matchmaker.FindPartnerButton))
	require.NoError(t, d.OnText(ctx, 2, "", matchmaker.FindPartnerButton))
	require.True(t, f.user(t, 1).PairedWith(2))

	require.NoError(t, d.OnText(ctx, 1, "", matchmaker.MyProfileButton))
	assert.Contains(t, f.tr.last(1).Text, "user1")
	assert.Contains(t, f.tr.last(1).Text, domain.MaleLabel)
	assert.Empty(t, f.tr.forwarded)

	require.NoError(t, d.OnText(ctx, 1, "", "hi there"))
	require.Len(t, f.tr.forwarded[2], 1)
	assert.Equal(t, matchmaker.Content{Kind: matchmaker.KindText, Text: "hi there"}, f.tr.forwarded[2][0])
}

func TestCommandsDriveTransitions(t *testing.T) {
	f, d := setupDispatcher(t)
	ctx := context.Background()
	f.register(t, 1, 2, 3)

	require.NoError(t, d.OnCommand(ctx, 1, "/search", nil))
	require.NoError(t, d.OnCommand(ctx, 2, "/search", nil))
	require.NoError(t, d.OnCommand(ctx, 3, "/search", nil))

	require.NoError(t, d.OnCommand(ctx, 2, "/next", nil))
	assert.True(t, f.user(t, 2).PairedWith(3))
	assert.True(t, f.user(t, 1).State.IsIdle())

	require.NoError(t, d.OnMedia(ctx, 3, matchmaker.Content{Kind: matchmaker.KindSticker, FileID: "CAAC"}))
	require.Len(t, f.tr.forwarded[2], 1)

	require.NoError(t, d.OnCommand(ctx, 3, "/stop", nil))
	assert.True(t, f.user(t, 2).State.IsIdle())
	assert.True(t, f.user(t, 3).State.IsIdle())
}

func TestStatsIsOperatorOnly(t *testing.T) {
	f, d := setupDispatcher(t)
	ctx := context.Background()
	f.register(t, 1, operator)

	require.NoError(t, d.OnCommand(ctx, 1, "/stats", nil))
	assert.Contains(t, f.tr.last(1).Text, "/search")

	require.NoError(t, d.OnCommand(ctx, operator, "/stats", nil))
	assert.Contains(t, f.tr.last(operator).Text, "2 idle")
}

func TestUnknownCommandShowsHelp(t *testing.T) {
	f, d := setupDispatcher(t)
	require.NoError(t, d.OnCommand(context.Background(), 1, "/dance", []string{"now"}))
	assert.Contains(t, f.tr.last(1).Text, "/next")
}
