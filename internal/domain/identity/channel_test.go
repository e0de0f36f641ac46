package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelIdentity(t *testing.T) {
	session := &Session{AccessToken: "t", AccountID: "acc-1", Username: "0901234567", Role: RoleDriver}

	t.Run("uses session fields", func(t *testing.T) {
		id, err := NewChannelIdentity(session, "", "", "")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", id.AccountID)
		assert.Equal(t, "0901234567", id.Username)
		assert.Equal(t, RoleDriver, id.Role)
	})

	t.Run("token claims win", func(t *testing.T) {
		id, err := NewChannelIdentity(session, "acc-2", "driver2", RoleCustomer)
		require.NoError(t, err)
		assert.Equal(t, "acc-2", id.AccountID)
		assert.Equal(t, "driver2", id.Username)
		assert.Equal(t, RoleCustomer, id.Role)
	})

	t.Run("username falls back to account id", func(t *testing.T) {
		id, err := NewChannelIdentity(nil, "acc-3", "", "")
		require.NoError(t, err)
		assert.Equal(t, "acc-3", id.Username)
		assert.Equal(t, RoleCustomer, id.Role)
	})

	t.Run("missing account id", func(t *testing.T) {
		_, err := NewChannelIdentity(&Session{AccessToken: "t"}, "", "", "")
		assert.True(t, errors.Is(err, ErrIncompleteIdentity))
	})
}

func TestChannelIdentity_Rooms(t *testing.T) {
	id := ChannelIdentity{AccountID: "acc-1", Username: "u"}

	assert.Equal(t, "acc-1", id.NotificationRoom())
	assert.Equal(t, "booking-9", id.ChatRoom("booking-9"))
	assert.True(t, id.IsSelf("acc-1"))
	assert.False(t, id.IsSelf("acc-2"))
	assert.False(t, id.IsSelf(""))
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleDriver, ParseRole(" driver "))
	assert.Equal(t, RoleCustomer, ParseRole("CUSTOMER"))
	assert.Equal(t, RoleCustomer, ParseRole("admin"))
}
