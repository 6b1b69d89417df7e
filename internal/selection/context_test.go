package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-backend/internal/analyses"
	"onboarding-backend/internal/identity"
)

func newStore(t *testing.T) (*analyses.MemoryRepo, *analyses.Client) {
	t.Helper()
	repo := analyses.NewMemoryRepo()
	svc := analyses.NewService(repo, nil)
	return repo, svc.ForSession(identity.New("u1", "", "", "token"))
}

func recordA() analyses.Record {
	return analyses.Record{
		ID:       "a1",
		UserID:   "u1",
		RepoURL:  "https://github.com/acme/widgets",
		RepoName: "acme/widgets",
		Data:     json.RawMessage(`{}`),
		Metadata: analyses.Some(analyses.Metadata{Owner: "acme", Language: "Go"}),
	}
}

func recordB() analyses.Record {
	return analyses.Record{
		ID:       "b1",
		UserID:   "u1",
		RepoURL:  "https://github.com/acme/gadgets",
		RepoName: "acme/gadgets",
		Data:     json.RawMessage(`{}`),
	}
}

func TestUnselectedAccessorsReportAbsent(t *testing.T) {
	_, client := newStore(t)
	sctx := New(client)

	_, ok := sctx.URL()
	assert.False(t, ok)
	_, ok = sctx.Name()
	assert.False(t, ok)
	_, ok = sctx.ID()
	assert.False(t, ok)
	_, ok = sctx.Metadata()
	assert.False(t, ok)
	assert.Nil(t, sctx.Snapshot().Selected)
}

func TestSelectReplacesWithoutResidue(t *testing.T) {
	_, client := newStore(t)
	sctx := New(client)

	sctx.Select(recordA())
	md, ok := sctx.Metadata()
	require.True(t, ok)
	assert.Equal(t, "Go", md.Language)

	sctx.Select(recordB())
	url, ok := sctx.URL()
	assert.True(t, ok)
	assert.Equal(t, "https://github.com/acme/gadgets", url)
	name, _ := sctx.Name()
	assert.Equal(t, "acme/gadgets", name)
	id, _ := sctx.ID()
	assert.Equal(t, "b1", id)
	_, ok = sctx.Metadata()
	assert.False(t, ok, "metadata from the previous selection must not leak")

	sctx.Deselect()
	_, ok = sctx.ID()
	assert.False(t, ok)
}

func TestSelectCopiesRecord(t *testing.T) {
	_, client := newStore(t)
	sctx := New(client)
	rec := recordA()
	rec.Data = json.RawMessage(`{"k":"v"}`)
	md, _ := rec.Metadata.Get()
	md.Technologies = []string{"gin"}
	rec.Metadata = analyses.Some(md)
	sctx.Select(rec)

	rec.RepoURL = "mutated"
	rec.Data[2] = 'X'
	md.Technologies[0] = "mutated"

	url, _ := sctx.URL()
	assert.Equal(t, "https://github.com/acme/widgets", url)
	got, ok := sctx.Selected()
	require.True(t, ok)
	assert.Equal(t, `{"k":"v"}`, string(got.Data))
	stored, _ := got.Metadata.Get()
	assert.Equal(t, []string{"gin"}, stored.Technologies)

	got.Data[2] = 'Y'
	again, _ := sctx.Selected()
	assert.Equal(t, `{"k":"v"}`, string(again.Data), "readers get their own copy")
	snap := sctx.Snapshot()
	snap.Selected.Data[2] = 'Z'
	again, _ = sctx.Selected()
	assert.Equal(t, `{"k":"v"}`, string(again.Data))
}

func TestRefreshRepublishesAndKeepsSelection(t *testing.T) {
	_, client := newStore(t)
	sctx := New(client)
	ctx := context.Background()

	_, err := client.Create(ctx, "https://github.com/acme/widgets", analyses.Payload{Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	sctx.Select(recordB())

	ch, cancel := sctx.Subscribe()
	defer cancel()
	sctx.Refresh(ctx)

	snap := <-ch
	require.Len(t, snap.Analyses, 1)
	assert.Equal(t, "https://github.com/acme/widgets", snap.Analyses[0].RepoURL)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, "b1", snap.Selected.ID)
}

func TestRefreshFailureIsSwallowed(t *testing.T) {
	repo, client := newStore(t)
	sctx := New(client)
	ctx := context.Background()

	_, err := client.Create(ctx, "https://github.com/acme/widgets", analyses.Payload{Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	sctx.Refresh(ctx)
	sctx.Select(recordA())
	before := sctx.Snapshot()

	repo.FailWith(errors.New("store offline"))
	sctx.Refresh(ctx)

	after := sctx.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, after.Analyses, 1)
	require.NotNil(t, after.Selected)
	assert.Equal(t, "a1", after.Selected.ID)
}

func TestSelectByIDReadsThroughStore(t *testing.T) {
	_, client := newStore(t)
	sctx := New(client)
	ctx := context.Background()

	id, err := client.Create(ctx, "https://github.com/acme/widgets", analyses.Payload{Data: json.RawMessage(`{}`)})
	require.NoError(t, err)

	rec, err := sctx.SelectByID(ctx, id)
	require.NoError(t, err)
	got, _ := sctx.ID()
	assert.Equal(t, rec.ID, got)

	_, err = sctx.SelectByID(ctx, "missing")
	assert.ErrorIs(t, err, analyses.ErrNotFound)
	got, _ = sctx.ID()
	assert.Equal(t, id, got, "failed select keeps the previous selection")
}

func TestSlowSubscriberSeesLatestSnapshot(t *testing.T) {
	_, client := newStore(t)
	sctx := New(client)
	ch, cancel := sctx.Subscribe()
	defer cancel()

	sctx.Select(recordA())
	sctx.Select(recordB())
	sctx.Deselect()
	sctx.Select(recordA())

	snap := <-ch
	require.NotNil(t, snap.Selected)
	assert.Equal(t, "a1", snap.Selected.ID)
	assert.Equal(t, uint64(4), snap.Version)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected buffered snapshot: %+v", extra)
	default:
	}
}

func TestUnsubscribeAndCloseEndStreams(t *testing.T) {
	_, client := newStore(t)
	sctx := New(client)

	ch1, cancel1 := sctx.Subscribe()
	ch2, _ := sctx.Subscribe()
	assert.Equal(t, 2, sctx.subscriberCount())

	cancel1()
	cancel1()
	_, open := <-ch1
	assert.False(t, open)

	sctx.Select(recordA())
	sctx.Close()
	assert.Equal(t, 0, sctx.subscriberCount())
	for range ch2 {
	}
	_, ok := sctx.ID()
	assert.False(t, ok)

	ch3, _ := sctx.Subscribe()
	_, open = <-ch3
	assert.False(t, open, "subscribing to a closed context yields a closed channel")
}

func TestConcurrentSelectsStayConsistent(t *testing.T) {
	_, client := newStore(t)
	sctx := New(client)
	ch, cancel := sctx.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					sctx.Select(recordA())
				} else {
					sctx.Select(recordB())
				}
				rec, ok := sctx.Selected()
				if ok && rec.ID == "a1" {
					assert.Equal(t, "https://github.com/acme/widgets", rec.RepoURL)
				}
			}
		}(i)
	}
	wg.Wait()

	snap := <-ch
	assert.Equal(t, uint64(400), snap.Version)
}

func TestRegistryScopesContextsBySession(t *testing.T) {
	svc := analyses.NewService(analyses.NewMemoryRepo(), nil)
	reg := NewRegistry(svc)
	s1 := identity.New("u1", "", "", "tok-1").WithSID("laptop")
	s2 := identity.New("u1", "", "", "tok-2").WithSID("phone")

	c1, err := reg.For(s1)
	require.NoError(t, err)
	again, err := reg.For(s1)
	require.NoError(t, err)
	assert.Same(t, c1, again)

	c2, err := reg.For(s2)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
	assert.Equal(t, 2, reg.Len())

	_, err = reg.For(identity.Session{})
	assert.ErrorIs(t, err, analyses.ErrAuthRequired)

	c1.Select(recordA())
	assert.True(t, reg.Logout(s1.ID))
	assert.False(t, reg.Logout(s1.ID))
	_, ok := c1.ID()
	assert.False(t, ok)

	fresh, err := reg.For(s1)
	require.NoError(t, err)
	_, ok = fresh.ID()
	assert.False(t, ok, "a new login starts unselected")
}

func TestRegistryKeepsSelectionAcrossTokenRefresh(t *testing.T) {
	repo := analyses.NewMemoryRepo()
	svc := analyses.NewService(repo, nil)
	reg := NewRegistry(svc)
	ctx := context.Background()

	first := identity.New("u1", "", "", "tok-0")
	id, err := svc.ForSession(first).Create(ctx, "https://github.com/acme/widgets", analyses.Payload{Data: json.RawMessage(`{}`)})
	require.NoError(t, err)

	sctx, err := reg.For(first)
	require.NoError(t, err)
	_, err = sctx.SelectByID(ctx, id)
	require.NoError(t, err)

	var latest *Context
	for i := 1; i <= 100; i++ {
		latest, err = reg.For(identity.New("u1", "", "", fmt.Sprintf("tok-%d", i)))
		require.NoError(t, err)
	}
	assert.Same(t, sctx, latest)
	assert.Equal(t, 1, reg.Len())
	got, ok := latest.ID()
	require.True(t, ok)
	assert.Equal(t, id, got)

	latest.Refresh(ctx)
	assert.Len(t, latest.Snapshot().Analyses, 1)
}

func TestRegistryEvictsIdleContexts(t *testing.T) {
	svc := analyses.NewService(analyses.NewMemoryRepo(), nil)
	reg := NewRegistry(svc)
	reg.IdleTTL = time.Minute
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	reg.Now = func() time.Time { return now }

	idle, err := reg.For(identity.New("u1", "", "", "t"))
	require.NoError(t, err)
	idle.Select(recordA())
	streaming, err := reg.For(identity.New("u2", "", "", "t"))
	require.NoError(t, err)
	_, unsubscribe := streaming.Subscribe()
	defer unsubscribe()

	now = now.Add(2 * time.Minute)
	_, err = reg.For(identity.New("u3", "", "", "t"))
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len(), "idle context dropped, streamed one kept")
	_, ok := idle.ID()
	assert.False(t, ok)
	again, err := reg.For(identity.New("u2", "", "", "t2"))
	require.NoError(t, err)
	assert.Same(t, streaming, again)
}

func TestRegistryCloseAllEndsStreams(t *testing.T) {
	svc := analyses.NewService(analyses.NewMemoryRepo(), nil)
	reg := NewRegistry(svc)
	var chans []<-chan Snapshot
	for _, user := range []string{"u1", "u2"} {
		sctx, err := reg.For(identity.New(user, "", "", "t"))
		require.NoError(t, err)
		ch, _ := sctx.Subscribe()
		chans = append(chans, ch)
	}

	reg.CloseAll()

	assert.Equal(t, 0, reg.Len())
	for _, ch := range chans {
		_, open := <-ch
		assert.False(t, open)
	}
}
