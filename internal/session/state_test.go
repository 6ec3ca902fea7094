package session

import (
	"context"
	"errors"
	"testing"
	"time"

	domainauth "github.com/iamdevroyal/blocpoint-client/internal/domain/auth"
	"github.com/iamdevroyal/blocpoint-client/internal/mocks"
	mocksauth "github.com/iamdevroyal/blocpoint-client/internal/mocks/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testExpiry = "2030-01-02T15:04:05.000000Z"

func newTestState(seed map[string]string) (*State, *mocksauth.MemoryStateStore) {
	store := mocksauth.NewMemoryStateStore(seed)
	return NewState(store), store
}

func TestState_EstablishAndSession(t *testing.T) {
	state, _ := newTestState(map[string]string{KeyDeviceID: "dev-1"})
	ctx := context.Background()

	identity := domainauth.Identity{"id": float64(7), "first_name": "Ada"}
	require.NoError(t, state.Establish(ctx, "tok-1", testExpiry, identity))

	sess, err := state.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Token)
	assert.Equal(t, identity, sess.Identity)
	assert.Equal(t, "dev-1", sess.DeviceID)
	assert.Equal(t, 2030, sess.ExpiresAt.Year())
	assert.True(t, sess.IsAuthenticated())
}

func TestState_EstablishRejectsEmptyToken(t *testing.T) {
	state, store := newTestState(nil)

	err := state.Establish(context.Background(), "", testExpiry, nil)
	require.Error(t, err)
	assert.Empty(t, store.Snapshot())
}

func TestState_EmptySession(t *testing.T) {
	state, _ := newTestState(nil)

	sess, err := state.Session(context.Background())
	require.NoError(t, err)
	assert.False(t, sess.IsAuthenticated())
	assert.Nil(t, sess.Identity)
	assert.True(t, sess.ExpiresAt.IsZero())
}

func TestState_ReplaceTokenKeepsIdentity(t *testing.T) {
	state, store := newTestState(map[string]string{
		KeyToken:          "old",
		KeyTokenExpiresAt: testExpiry,
		KeyIdentity:       `{"id":"1"}`,
	})
	ctx := context.Background()

	require.NoError(t, state.ReplaceToken(ctx, "new"))

	assert.Equal(t, map[string]string{
		KeyToken:          "new",
		KeyTokenExpiresAt: testExpiry,
		KeyIdentity:       `{"id":"1"}`,
	}, store.Snapshot())

	require.Error(t, state.ReplaceToken(ctx, ""))
}

func TestState_ExpireTokenIsPartial(t *testing.T) {
	state, store := newTestState(map[string]string{
		KeyToken:          "tok",
		KeyTokenExpiresAt: testExpiry,
		KeyIdentity:       `{"id":"1"}`,
		KeyDeviceID:       "dev-1",
	})

	require.NoError(t, state.ExpireToken(context.Background()))

	assert.Equal(t, map[string]string{
		KeyIdentity: `{"id":"1"}`,
		KeyDeviceID: "dev-1",
	}, store.Snapshot())
}

func TestState_ClearKeepsDevice(t *testing.T) {
	state, store := newTestState(map[string]string{
		KeyToken:          "tok",
		KeyTokenExpiresAt: testExpiry,
		KeyIdentity:       `{"id":"1"}`,
		KeyDeviceID:       "dev-1",
	})

	require.NoError(t, state.Clear(context.Background()))

	assert.Equal(t, map[string]string{KeyDeviceID: "dev-1"}, store.Snapshot())
}

func TestState_DeviceIDIsStable(t *testing.T) {
	state, _ := newTestState(nil)
	ctx := context.Background()

	has, err := state.HasDeviceID(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	first, err := state.DeviceID(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 36)

	second, err := state.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, state.ForgetDevice(ctx))
	third, err := state.DeviceID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestState_IdentityDecodeError(t *testing.T) {
	state, _ := newTestState(map[string]string{KeyIdentity: "{not json"})

	_, err := state.Identity(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode cached identity")
}

func TestState_StoreReadErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStateStore(ctrl)
	store.EXPECT().Get(gomock.Any(), KeyToken).Return("", errors.New("connection refused"))

	_, err := NewState(store).Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read token")
}

func TestState_SetIdentity(t *testing.T) {
	state, _ := newTestState(nil)
	ctx := context.Background()

	require.NoError(t, state.SetIdentity(ctx, domainauth.Identity{"id": "9"}))
	identity, err := state.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "9", identity.ID())
}

func TestParseExpiry(t *testing.T) {
	assert.True(t, ParseExpiry("").IsZero())
	assert.True(t, ParseExpiry("next tuesday").IsZero())
	assert.Equal(t, time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC), ParseExpiry("2030-01-02T15:04:05Z").UTC())
	assert.Equal(t, 2030, ParseExpiry(testExpiry).Year())
}
