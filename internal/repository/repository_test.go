package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
	"github.com/Shivanand-hulikatti/event-feed/internal/docstore/memory"
	"github.com/Shivanand-hulikatti/event-feed/internal/model"
)

var colls = Collections{Namespace: "test"}

func TestCollections(t *testing.T) {
	require.Equal(t, "apps/test/events", colls.Events())
	require.Equal(t, "apps/test/events/e1/registrations", colls.Registrations("e1"))
	require.Equal(t, "apps/test/accounts", colls.Accounts())
}

func TestEventRepository(t *testing.T) {
	ctx := context.Background()
	events := NewEventRepository(memory.New(), colls)

	id, err := events.Create(ctx, model.Event{Title: "Later", Date: "2026-06-01", Time: "18:00"})
	require.NoError(t, err)
	_, err = events.Create(ctx, model.Event{Title: "Sooner", Date: "2026-05-01", Time: "18:00"})
	require.NoError(t, err)

	e, err := events.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Later", e.Title)
	require.Equal(t, id, e.ID)
	require.Zero(t, e.AttendeeCount)

	n, err := events.IncrementAttendees(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	list, err := events.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Sooner", list[0].Title)
	require.Equal(t, int64(1), list[1].AttendeeCount)

	_, err = events.GetByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = events.IncrementAttendees(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEventRepository_Watch(t *testing.T) {
	ctx := context.Background()
	events := NewEventRepository(memory.New(), colls)

	got := make(chan []model.Event, 4)
	sub, err := events.Watch(ctx, func(list []model.Event, err error) {
		require.NoError(t, err)
		got <- list
	})
	require.NoError(t, err)
	defer sub.Close()

	require.Empty(t, <-got)
	_, err = events.Create(ctx, model.Event{Title: "Tasting", Date: "2026-05-01"})
	require.NoError(t, err)
	select {
	case list := <-got:
		require.Len(t, list, 1)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after create")
	}
}

func TestRegistrationRepository(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	regs := NewRegistrationRepository(store, colls)

	err := regs.Create(ctx, "e1", "ann@x.com", model.Registration{Name: "Ann", Email: "ann@x.com", RegisteredAt: 2})
	require.NoError(t, err)
	err = regs.Create(ctx, "e1", "ann@x.com", model.Registration{Name: "Bob", Email: "ann@x.com", RegisteredAt: 3})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	require.NoError(t, regs.Create(ctx, "e1", "bob@x.com", model.Registration{Name: "Bob", Email: "bob@x.com", RegisteredAt: 1}))
	require.NoError(t, regs.Create(ctx, "e2", "ann@x.com", model.Registration{Name: "Ann", Email: "ann@x.com"}),
		"keys are scoped per event")

	reg, err := regs.Get(ctx, "e1", "ann@x.com")
	require.NoError(t, err)
	require.Equal(t, "Ann", reg.Name)

	list, err := regs.ListByEvent(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Bob", list[0].Name, "ordered by registeredAt")

	doc, err := store.Get(ctx, docstore.Doc(colls.Registrations("e1"), "ann@x.com"))
	require.NoError(t, err)
	require.Equal(t, "ann@x.com", doc.Fields.String(FieldEmail))
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	accounts := NewAccountRepository(memory.New(), colls)

	a := model.Account{UID: "u1", Email: "ann@x.com", PasswordHash: "hash", CreatedAt: 5}
	require.NoError(t, accounts.Create(ctx, a))
	require.ErrorIs(t, accounts.Create(ctx, a), ErrAccountExists)

	got, err := accounts.Get(ctx, "ann@x.com")
	require.NoError(t, err)
	require.Equal(t, a, *got)

	_, err = accounts.Get(ctx, "bob@x.com")
	require.ErrorIs(t, err, ErrNotFound)
}
