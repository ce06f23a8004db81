package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
)

func newAccountFixture(platforms ...models.Platform) (*accountService, *memAccounts, *fakeResolver, *fakeClock) {
	accounts := newMemAccounts()
	resolver := newFakeResolver(platforms...)
	clock := newClock()
	svc := NewAccountService(accounts, resolver, nil).(*accountService)
	svc.now = clock.Now
	return svc, accounts, resolver, clock
}

func TestAccountCreate(t *testing.T) {
	ctx := context.Background()
	svc, accounts, resolver, _ := newAccountFixture(models.PlatformTwitter)

	id, err := svc.Create(ctx, &models.Account{Platform: "X", Credentials: map[string]string{"access_token": "a"}}, false)
	require.NoError(t, err)
	a, _ := accounts.GetByID(ctx, id)
	assert.Equal(t, models.PlatformTwitter, a.Platform)
	assert.Equal(t, models.AccountStatusActive, a.Status)
	assert.Equal(t, "twitter", a.DisplayName)

	_, err = svc.Create(ctx, &models.Account{Platform: models.PlatformTwitter}, false)
	assert.True(t, apperr.IsKind(err, apperr.MissingCredentials))

	_, err = svc.Create(ctx, &models.Account{Platform: "friendster", Credentials: map[string]string{"k": "v"}}, false)
	assert.True(t, apperr.IsKind(err, apperr.Unsupported))

	resolver.testErr = apperr.New(apperr.InvalidToken, "token revoked")
	_, err = svc.Create(ctx, &models.Account{Platform: models.PlatformTwitter, Credentials: map[string]string{"access_token": "b"}}, false)
	assert.True(t, apperr.IsKind(err, apperr.InvalidToken))

	_, err = svc.Create(ctx, &models.Account{Platform: models.PlatformTwitter, Credentials: map[string]string{"access_token": "b"}}, true)
	assert.NoError(t, err)
}

func TestAccountUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, accounts, resolver, _ := newAccountFixture(models.PlatformFacebook)
	a := accounts.add(models.PlatformFacebook, map[string]string{"page_access_token": "old"})

	updated, err := svc.Update(ctx, a.ID, AccountUpdate{
		DisplayName: "Brand page",
		Credentials: map[string]string{"page_access_token": "new"},
		Status:      models.AccountStatusInactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Brand page", updated.DisplayName)
	assert.Equal(t, "new", updated.Credentials["page_access_token"])
	assert.Equal(t, models.AccountStatusInactive, updated.Status)
	assert.Equal(t, []int64{a.ID}, resolver.forgotten)

	_, err = svc.Update(ctx, a.ID, AccountUpdate{Status: "paused"})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))

	_, err = svc.Update(ctx, 999, AccountUpdate{})
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	require.NoError(t, svc.Delete(ctx, a.ID))
	assert.True(t, apperr.IsKind(svc.Delete(ctx, a.ID), apperr.NotFound))
}

func TestRefreshExpiring(t *testing.T) {
	ctx := context.Background()
	svc, accounts, resolver, clock := newAccountFixture(models.PlatformLinkedIn, models.PlatformYoutube)

	soon := clock.Now().Add(10 * time.Minute)
	later := clock.Now().Add(48 * time.Hour)
	ok := accounts.add(models.PlatformLinkedIn, map[string]string{"access_token": "a"})
	bad := accounts.add(models.PlatformYoutube, map[string]string{"refresh_token": "r"})
	idle := accounts.add(models.PlatformLinkedIn, map[string]string{"access_token": "c"})
	require.NoError(t, accounts.UpdateCredentials(ctx, ok.ID, ok.Credentials, &soon))
	require.NoError(t, accounts.UpdateCredentials(ctx, bad.ID, bad.Credentials, &soon))
	require.NoError(t, accounts.UpdateCredentials(ctx, idle.ID, idle.Credentials, &later))
	resolver.clients[models.PlatformYoutube].authErr = apperr.New(apperr.InvalidToken, "invalid_grant")

	summary, err := svc.RefreshExpiring(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, &RefreshSummary{Checked: 2, Refreshed: 1, Failed: 1}, summary)
	assert.Equal(t, 1, resolver.clients[models.PlatformLinkedIn].refreshes)
	assert.Equal(t, models.AccountStatusActive, accounts.statuses[ok.ID])
	assert.Equal(t, models.AccountStatusError, accounts.statuses[bad.ID])
	assert.Equal(t, []int64{bad.ID}, resolver.forgotten)

	stored, _ := accounts.GetByID(ctx, bad.ID)
	assert.Contains(t, stored.LastError, "invalid_grant")
}
