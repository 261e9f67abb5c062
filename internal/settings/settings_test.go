// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/stalkfish-go/internal/model"
	"github.com/olegiv/stalkfish-go/internal/testutil"
)

func TestOptions_GetSetHasDelete(t *testing.T) {
	ctx := context.Background()
	o := NewMemory(testutil.TestLogger())

	assert.False(t, o.Has(KeyAPIKey))
	assert.Equal(t, "fallback", o.String(KeyAPIKey, "fallback"))

	require.NoError(t, o.Set(ctx, KeyAPIKey, "secret"))
	assert.True(t, o.Has(KeyAPIKey))
	assert.Equal(t, "secret", o.APIKey())

	require.NoError(t, o.Delete(ctx, KeyAPIKey))
	assert.False(t, o.Has(KeyAPIKey))
	assert.Equal(t, "", o.APIKey())
}

func TestOptions_Bool(t *testing.T) {
	ctx := context.Background()
	o := NewMemory(testutil.TestLogger())

	assert.True(t, o.ActivityLogsEnabled(), "defaults to enabled")
	assert.True(t, o.ErrorLogsEnabled(), "defaults to enabled")

	tests := []struct {
		value any
		want  bool
	}{
		{true, true},
		{false, false},
		{"1", true},
		{"on", true},
		{"", false},
		{0, false},
		{1, true},
	}
	for _, tt := range tests {
		require.NoError(t, o.Set(ctx, KeyActivityLogs, tt.value))
		assert.Equal(t, tt.want, o.ActivityLogsEnabled(), "value %v", tt.value)
	}
}

func TestOptions_RequestType(t *testing.T) {
	ctx := context.Background()
	o := NewMemory(testutil.TestLogger())

	assert.Equal(t, model.RequestAsync, o.RequestType())
	require.NoError(t, o.Set(ctx, KeyRequestType, "immediate"))
	assert.Equal(t, model.RequestImmediate, o.RequestType())
	require.NoError(t, o.Set(ctx, KeyRequestType, "bogus"))
	assert.Equal(t, model.RequestAsync, o.RequestType())
}

func TestOptions_OnChange(t *testing.T) {
	ctx := context.Background()
	o := NewMemory(testutil.TestLogger())

	var changed []string
	o.OnChange(func(_ context.Context, key string) { changed = append(changed, key) })

	require.NoError(t, o.Set(ctx, KeySiteID, "12"))
	require.NoError(t, o.Delete(ctx, KeySiteID))
	assert.Equal(t, []string{KeySiteID, KeySiteID}, changed)
}

func TestOptions_SQLBackendPersists(t *testing.T) {
	ctx := context.Background()
	db := testutil.TestDB(t)

	o, err := Open(ctx, NewSQLBackend(db), testutil.TestLogger())
	require.NoError(t, err)
	require.NoError(t, o.Set(ctx, KeyAPIKey, "persisted"))
	require.NoError(t, o.SetExclusionRules(ctx, []model.ExclusionRule{{Pipe: "posts"}}))

	reopened, err := Open(ctx, NewSQLBackend(db), testutil.TestLogger())
	require.NoError(t, err)
	assert.Equal(t, "persisted", reopened.APIKey())
	assert.Equal(t, []model.ExclusionRule{{Pipe: "posts"}}, reopened.ExclusionRules())
}

func TestColumnarRules_DropsHelperRow(t *testing.T) {
	c := ColumnarRules{
		Rows:         map[string]string{"0": "", "1": "", "2": "", "helper": ""},
		Pipe:         map[string]string{"0": "posts", "1": "", "helper": "users"},
		Context:      map[string]string{"0": "post"},
		Action:       map[string]string{"0": "deleted", "2": "login"},
		AuthorOrRole: map[string]string{"1": "", "2": "12"},
	}

	rules := c.Rules()
	assert.Equal(t, []model.ExclusionRule{
		{Pipe: "posts", Context: "post", Action: "deleted"},
		{Action: "login", AuthorOrRole: "12"},
	}, rules)
}

func TestColumnarRules_RoundTrip(t *testing.T) {
	rules := []model.ExclusionRule{
		{Pipe: "posts", Action: "deleted", AuthorOrRole: "editor"},
		{Context: "profiles"},
	}
	assert.Equal(t, rules, Columns(rules).Rules())
}

func TestColumnarRules_NumericRowOrder(t *testing.T) {
	c := ColumnarRules{
		Rows: map[string]string{"10": "", "2": "", "1": ""},
		Pipe: map[string]string{"10": "c", "2": "b", "1": "a"},
	}
	rules := c.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, "a", rules[0].Pipe)
	assert.Equal(t, "b", rules[1].Pipe)
	assert.Equal(t, "c", rules[2].Pipe)
}

func TestSetExclusionRules_RejectsEmptyRule(t *testing.T) {
	o := NewMemory(testutil.TestLogger())
	err := o.SetExclusionRules(context.Background(), []model.ExclusionRule{{Pipe: "posts"}, {}})
	assert.True(t, errors.Is(err, ErrEmptyRule))
	assert.Nil(t, o.ExclusionRules())
}
