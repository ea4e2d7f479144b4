package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvern/netplane/internal/backend"
	"github.com/openvern/netplane/internal/domain"
	"github.com/openvern/netplane/internal/repository"
	"github.com/openvern/netplane/internal/testutil"
)

type publicFixture struct {
	ctrl     *PublicController
	networks repository.NetworkRepository
	addrs    repository.PublicAddressRepository
	fake     *backend.Fake
}

func newPublicFixture(t *testing.T) *publicFixture {
	t.Helper()
	store, _ := testutil.SetupTestStore(t)
	cfg := testutil.NewTestConfig()
	fake := backend.NewFake()
	networks := repository.NewNetworkRepository(store)
	addrs := repository.NewPublicAddressRepository(store)

	ctrl, err := NewPublicController(context.Background(), cfg, networks, addrs, fake)
	require.NoError(t, err)
	return &publicFixture{ctrl: ctrl, networks: networks, addrs: addrs, fake: fake}
}

func TestPublicController_AllocateSkipsNetworkAndBroadcast(t *testing.T) {
	f := newPublicFixture(t)
	ctx := context.Background()

	first, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)
	assert.Equal(t, "4.4.4.2", first)

	second, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)
	assert.Equal(t, "4.4.4.3", second)
}

func TestPublicController_PoolExhaustion(t *testing.T) {
	f := newPublicFixture(t)
	ctx := context.Background()

	// /28 has 16 addresses; indices 2..14 are allocatable.
	for i := 0; i < 13; i++ {
		_, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
		require.NoError(t, err)
	}
	_, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	assert.ErrorIs(t, err, repository.ErrResourcePoolExhausted)
}

func TestPublicController_AllocateReleaseRoundTrip(t *testing.T) {
	f := newPublicFixture(t)
	ctx := context.Background()

	address, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.ReleaseAddress(ctx, address))

	_, err = f.addrs.FindByAddress(ctx, address)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	again, err := f.ctrl.AllocateAddress(ctx, "user-b", "proj-b")
	require.NoError(t, err)
	assert.Equal(t, address, again)
}

func TestPublicController_ReleaseUnallocatedFails(t *testing.T) {
	f := newPublicFixture(t)
	err := f.ctrl.ReleaseAddress(context.Background(), "4.4.4.9")
	assert.ErrorIs(t, err, repository.ErrAddressNotAllocated)
}

func TestPublicController_AssociateExpressesNAT(t *testing.T) {
	f := newPublicFixture(t)
	ctx := context.Background()

	public, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Associate(ctx, public, "10.0.0.3", "i-1"))

	assert.True(t, f.fake.Bound(public, "vlan1"))
	for _, rule := range associationRules(public, "10.0.0.3") {
		assert.True(t, f.fake.HasRule(rule), "missing rule %s", rule)
	}

	record, err := f.addrs.FindByAddress(ctx, public)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", record.PrivateIP)
	assert.Equal(t, "i-1", record.InstanceID)
}

func TestPublicController_AssociateUnallocatedFails(t *testing.T) {
	f := newPublicFixture(t)
	err := f.ctrl.Associate(context.Background(), "4.4.4.9", "10.0.0.3", "i-1")
	assert.ErrorIs(t, err, repository.ErrAddressNotAllocated)
}

func TestPublicController_DoubleAssociateFails(t *testing.T) {
	f := newPublicFixture(t)
	ctx := context.Background()

	public, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Associate(ctx, public, "10.0.0.3", "i-1"))

	err = f.ctrl.Associate(ctx, public, "10.0.0.4", "i-2")
	assert.ErrorIs(t, err, repository.ErrAddressAlreadyAssociated)
}

func TestPublicController_TwoPublicsOnePrivateFails(t *testing.T) {
	f := newPublicFixture(t)
	ctx := context.Background()

	first, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)
	second, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)

	require.NoError(t, f.ctrl.Associate(ctx, first, "10.0.0.3", "i-1"))
	err = f.ctrl.Associate(ctx, second, "10.0.0.3", "i-1")
	assert.ErrorIs(t, err, repository.ErrAddressAlreadyAssociated)
}

func TestPublicController_DisassociateTearsDownSymmetrically(t *testing.T) {
	f := newPublicFixture(t)
	ctx := context.Background()

	public, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Associate(ctx, public, "10.0.0.3", "i-1"))
	require.NoError(t, f.ctrl.Disassociate(ctx, public))

	assert.False(t, f.fake.Bound(public, "vlan1"))
	assert.Zero(t, f.fake.RuleCount(), "every confirmed rule must be removed")

	record, err := f.addrs.FindByAddress(ctx, public)
	require.NoError(t, err)
	assert.False(t, record.Associated())

	// The address stays leased and can be associated again.
	require.NoError(t, f.ctrl.Associate(ctx, public, "10.0.0.4", "i-2"))
}

func TestPublicController_DisassociateUnassociatedFails(t *testing.T) {
	f := newPublicFixture(t)
	ctx := context.Background()

	public, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)

	err = f.ctrl.Disassociate(ctx, public)
	assert.ErrorIs(t, err, repository.ErrAddressNotAssociated)

	err = f.ctrl.Disassociate(ctx, "4.4.4.9")
	assert.ErrorIs(t, err, repository.ErrAddressNotAllocated)
}

func TestPublicController_AssociateRollsBackOnBackendFailure(t *testing.T) {
	f := newPublicFixture(t)
	ctx := context.Background()

	public, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)

	f.fake.FailOn["ConfirmRule"] = true
	err = f.ctrl.Associate(ctx, public, "10.0.0.3", "i-1")
	assert.ErrorIs(t, err, backend.ErrActivationFailed)

	record, err := f.addrs.FindByAddress(ctx, public)
	require.NoError(t, err)
	assert.False(t, record.Associated(), "failed activation must leave the record available")

	f.fake.FailOn["ConfirmRule"] = false
	require.NoError(t, f.ctrl.Associate(ctx, public, "10.0.0.3", "i-1"))
}

func TestPublicController_ReleaseAssociatedTearsDownFirst(t *testing.T) {
	f := newPublicFixture(t)
	ctx := context.Background()

	public, err := f.ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Associate(ctx, public, "10.0.0.3", "i-1"))
	require.NoError(t, f.ctrl.ReleaseAddress(ctx, public))

	assert.False(t, f.fake.Bound(public, "vlan1"))
	assert.Zero(t, f.fake.RuleCount())
}

func TestPublicController_RestartReexpressesAssociations(t *testing.T) {
	store, _ := testutil.SetupTestStore(t)
	cfg := testutil.NewTestConfig()
	networks := repository.NewNetworkRepository(store)
	addrs := repository.NewPublicAddressRepository(store)
	ctx := context.Background()

	first := backend.NewFake()
	ctrl, err := NewPublicController(ctx, cfg, networks, addrs, first)
	require.NoError(t, err)
	public, err := ctrl.AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)
	require.NoError(t, ctrl.Associate(ctx, public, "10.0.0.3", "i-1"))

	// A fresh backend models a rebooted host with empty live state.
	second := backend.NewFake()
	_, err = NewPublicController(ctx, cfg, networks, addrs, second)
	require.NoError(t, err)

	assert.True(t, second.Bound(public, "vlan1"))
	for _, rule := range associationRules(public, "10.0.0.3") {
		assert.True(t, second.HasRule(rule))
	}
}

func TestPublicController_PersistsPublicNetworkRecord(t *testing.T) {
	f := newPublicFixture(t)

	rec, err := f.networks.FindByID(context.Background(), PublicNetworkID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindPublic, rec.Kind)
	assert.Equal(t, "4.4.4.0/28", rec.CIDR)
}
