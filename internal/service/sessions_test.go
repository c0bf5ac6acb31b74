package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_LoginMergesGuestAndAccountCarts(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 10, "B": 10})
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, f.accounts.Save(ctx, user.String(), domain.Cart{"A": 3, "B": 1}))

	anon := f.session(t, guest("dev-1"))
	_, err := anon.SetQuantity(ctx, "A", 1)
	require.NoError(t, err)

	s, adjustments, err := f.sessions.Get(ctx, member("dev-1", user))
	require.NoError(t, err)
	s.Wait()

	assert.Same(t, anon, s, "the device keeps its session across login")
	assert.Empty(t, adjustments)
	assert.Equal(t, domain.Cart{"A": 3, "B": 1}, s.Cart())
	assert.Equal(t, user, s.Identity().UserID)

	stored, err := f.accounts.Load(ctx, user.String())
	require.NoError(t, err)
	assert.Equal(t, domain.Cart{"A": 3, "B": 1}, stored, "reconciled cart is pushed to the account copy")

	device, err := f.devices.Load(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Cart{"A": 3, "B": 1}, device)
}

func TestSessions_LoginClampsMergedCartToStock(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 10, "B": 2})
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, f.accounts.Save(ctx, user.String(), domain.Cart{"B": 5}))

	anon := f.session(t, guest("dev-1"))
	_, err := anon.SetQuantity(ctx, "A", 2)
	require.NoError(t, err)

	s, adjustments, err := f.sessions.Get(ctx, member("dev-1", user))
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, domain.Cart{"A": 2, "B": 2}, s.Cart())
	assert.Equal(t, []Adjustment{{ProductID: "B", From: 5, To: 2}}, adjustments)
}

func TestSessions_ReconciliationRunsOnce(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 10})
	ctx := context.Background()
	user := uuid.New()

	anon := f.session(t, guest("dev-1"))
	_, err := anon.SetQuantity(ctx, "A", 1)
	require.NoError(t, err)

	s, _, err := f.sessions.Get(ctx, member("dev-1", user))
	require.NoError(t, err)
	s.Wait()

	// The account copy changes elsewhere; a second request must not merge it again.
	require.NoError(t, f.accounts.Save(ctx, user.String(), domain.Cart{"A": 9}))

	again, adjustments, err := f.sessions.Get(ctx, member("dev-1", user))
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Nil(t, adjustments)
	assert.Equal(t, domain.Cart{"A": 1}, again.Cart())
}

func TestSessions_FailedReconciliationRetriesOnNextRequest(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 10})
	ctx := context.Background()
	user := uuid.New()

	f.session(t, guest("dev-1"))
	f.accounts.SetErrors(errors.New("account service down"), nil)

	s, _, err := f.sessions.Get(ctx, member("dev-1", user))
	require.NoError(t, err)
	assert.False(t, s.Identity().Authenticated())

	f.accounts.SetErrors(nil, nil)
	s, _, err = f.sessions.Get(ctx, member("dev-1", user))
	require.NoError(t, err)
	assert.Equal(t, user, s.Identity().UserID)
}

func TestSessions_AccountReadFailureKeepsAccountCart(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 10, "B": 10, "C": 10})
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, f.accounts.Save(ctx, user.String(), domain.Cart{"A": 3, "B": 1}))
	f.accounts.SetErrors(errors.New("account service down"), nil)

	s, _, err := f.sessions.Get(ctx, member("dev-9", user))
	require.NoError(t, err)
	assert.False(t, s.Attached())

	_, err = s.SetQuantity(ctx, "C", 1)
	require.NoError(t, err)
	s.Wait()

	f.accounts.SetErrors(nil, nil)
	stored, err := f.accounts.Load(ctx, user.String())
	require.NoError(t, err)
	assert.Equal(t, domain.Cart{"A": 3, "B": 1}, stored, "detached session never writes the account copy")

	again, _, err := f.sessions.Get(ctx, member("dev-9", user))
	require.NoError(t, err)
	again.Wait()

	assert.Same(t, s, again)
	assert.True(t, again.Attached())
	want := domain.Cart{"A": 3, "B": 1, "C": 1}
	assert.Equal(t, want, again.Cart())

	stored, err = f.accounts.Load(ctx, user.String())
	require.NoError(t, err)
	assert.Equal(t, want, stored)
}

func TestSessions_LogoutStartsFreshSessionFromDeviceCopy(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 10})
	ctx := context.Background()
	user := uuid.New()

	s := f.session(t, member("dev-1", user))
	_, err := s.SetQuantity(ctx, "A", 2)
	require.NoError(t, err)
	s.Wait()

	after, _, err := f.sessions.Get(ctx, guest("dev-1"))
	require.NoError(t, err)

	assert.NotSame(t, s, after)
	assert.False(t, after.Identity().Authenticated())
	assert.Equal(t, domain.Cart{"A": 2}, after.Cart(), "device copy survives logout")
}

func TestSessions_LoginPromotesGuestAddresses(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 10})
	ctx := context.Background()
	user := uuid.New()

	f.session(t, guest("dev-1"))
	addr := f.saveAddress(t, guest("dev-1"), "1 Main St", "12345")

	_, _, err := f.sessions.Get(ctx, member("dev-1", user))
	require.NoError(t, err)

	promoted, err := f.addresses.Get(ctx, addr.ID)
	require.NoError(t, err)
	assert.False(t, promoted.IsGuestAddress)
	assert.Equal(t, user, promoted.UserID)
}

func TestSessions_ResetCarts(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 10})
	ctx := context.Background()
	user := uuid.New()
	id := member("dev-1", user)

	s := f.session(t, id)
	_, err := s.SetQuantity(ctx, "A", 2)
	require.NoError(t, err)
	s.Wait()

	f.sessions.ResetCarts(ctx, id)
	s.Wait()

	assert.True(t, s.Cart().IsEmpty())
	device, _ := f.devices.Load(ctx, "dev-1")
	account, _ := f.accounts.Load(ctx, user.String())
	assert.True(t, device.IsEmpty())
	assert.True(t, account.IsEmpty())
}

func TestSessions_ResetCartsWithoutLiveSession(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 10})
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, f.devices.Save(ctx, "dev-9", domain.Cart{"A": 1}))
	require.NoError(t, f.accounts.Save(ctx, user.String(), domain.Cart{"A": 1}))

	f.sessions.ResetCarts(ctx, member("dev-9", user))

	device, _ := f.devices.Load(ctx, "dev-9")
	account, _ := f.accounts.Load(ctx, user.String())
	assert.True(t, device.IsEmpty())
	assert.True(t, account.IsEmpty())
	assert.Equal(t, 0, f.sessions.Len())
}

func TestSessions_RequiresDeviceID(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.sessions.Get(context.Background(), domain.Identity{})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestSessions_ForgetRestoresFromDeviceCopy(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 10})
	ctx := context.Background()

	s := f.session(t, guest("dev-1"))
	_, err := s.SetQuantity(ctx, "A", 4)
	require.NoError(t, err)
	saves := f.devices.Saves()
	require.Equal(t, 1, f.sessions.Len())

	f.sessions.Forget("dev-1")
	assert.Equal(t, 0, f.sessions.Len())

	restored, _, err := f.sessions.Get(ctx, guest("dev-1"))
	require.NoError(t, err)
	assert.NotSame(t, s, restored)
	assert.Equal(t, domain.Cart{"A": 4}, restored.Cart())
	assert.Equal(t, saves, f.devices.Saves(), "restoring does not rewrite the device copy")
}
