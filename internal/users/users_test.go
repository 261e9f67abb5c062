// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/stalkfish-go/internal/cache"
	"github.com/olegiv/stalkfish-go/internal/exclude"
	"github.com/olegiv/stalkfish-go/internal/model"
	"github.com/olegiv/stalkfish-go/internal/testutil"
)

var _ exclude.AuthorResolver = (*Directory)(nil)

func TestDirectory_RememberAndResolve(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		name := "no cache"
		if withCache {
			name = "cached"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var c cache.Cache
			if withCache {
				mc := cache.NewSimpleMemoryCache(time.Minute)
				t.Cleanup(func() { _ = mc.Close() })
				c = mc
			}
			d := New(testutil.TestDB(t), c, testutil.TestLoggerSilent())

			d.Remember(ctx, &model.Actor{ID: 3, Username: "bob", Role: "author"})
			name, err := d.Username(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, "bob", name)

			d.Remember(ctx, &model.Actor{ID: 3, Username: "robert", Role: "editor"})
			u, err := d.Lookup(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, "robert", u.Username)
			assert.Equal(t, "editor", u.Role)
		})
	}
}

func TestDirectory_UnknownUser(t *testing.T) {
	d := New(testutil.TestDB(t), nil, nil)
	_, err := d.Username(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestDirectory_IgnoresNonUsers(t *testing.T) {
	ctx := context.Background()
	d := New(testutil.TestDB(t), nil, testutil.TestLoggerSilent())

	d.Remember(ctx, nil)
	d.Remember(ctx, &model.Actor{Username: "Plugin"})
	d.Remember(ctx, &model.Actor{ID: 5})

	_, err := d.Lookup(ctx, 5)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestDirectory_ResolvesNumericRules(t *testing.T) {
	ctx := context.Background()
	d := New(testutil.TestDB(t), nil, testutil.TestLoggerSilent())
	d.Remember(ctx, &model.Actor{ID: 12, Username: "carol", Role: "admin"})

	m := exclude.NewMatcher(d, testutil.TestLoggerSilent())
	m.Reload(ctx, []model.ExclusionRule{{AuthorOrRole: "12"}})

	carol := model.Event{Initiator: model.InitiatorUser, Author: "carol", Role: "admin"}
	other := model.Event{Initiator: model.InitiatorUser, Author: "dave", Role: "admin"}
	assert.True(t, m.IsExcluded(carol))
	assert.False(t, m.IsExcluded(other))
}

func TestDirectory_UserSeenAfterRulesLoaded(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewSimpleMemoryCache(time.Minute)
	t.Cleanup(func() { _ = mc.Close() })
	d := New(testutil.TestDB(t), mc, testutil.TestLoggerSilent())

	m := exclude.NewMatcher(d, testutil.TestLoggerSilent())
	d.OnRemember(m.UserChanged)
	m.Reload(ctx, []model.ExclusionRule{{AuthorOrRole: "12"}})

	carol := model.Event{Initiator: model.InitiatorUser, Author: "carol", Role: "admin"}
	assert.False(t, m.IsExcluded(carol))

	d.Remember(ctx, &model.Actor{ID: 12, Username: "carol", Role: "admin"})
	for i := 0; i < 3; i++ {
		assert.True(t, m.IsExcluded(carol), "event %d", i)
	}
}
