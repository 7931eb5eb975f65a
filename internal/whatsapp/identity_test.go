package whatsapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveContactIdentity_PlainUser(t *testing.T) {
	id := ResolveContactIdentity("5511999998888@s.whatsapp.net", "", false)

	assert.Equal(t, "5511999998888", id.ContactNumber)
	assert.Equal(t, "5511999998888@s.whatsapp.net", id.ReplyAddress)
	assert.Equal(t, "5511999998888", id.MediaLookupNumber)
	assert.False(t, id.Degraded)
	assert.False(t, id.IsGroup)
}

func TestResolveContactIdentity_Group(t *testing.T) {
	id := ResolveContactIdentity("120363042123456789@g.us", "", true)

	assert.Equal(t, "120363042123456789@g.us", id.ContactNumber)
	assert.Equal(t, "120363042123456789@g.us", id.ReplyAddress)
	assert.Empty(t, id.MediaLookupNumber)
	assert.True(t, id.IsGroup)
}

func TestResolveContactIdentity_GroupSuffixWithoutFlag(t *testing.T) {
	id := ResolveContactIdentity("120363042123456789@g.us", "", false)

	assert.True(t, id.IsGroup)
}

func TestResolveContactIdentity_LIDWithAlternate(t *testing.T) {
	id := ResolveContactIdentity("98765432109876543@lid", "5511999998888@s.whatsapp.net", false)

	assert.Equal(t, "5511999998888", id.ContactNumber)
	assert.Equal(t, "98765432109876543@lid", id.ReplyAddress, "sends must target the LID, not the real number")
	assert.Equal(t, "5511999998888", id.MediaLookupNumber)
	assert.False(t, id.Degraded)
}

func TestResolveContactIdentity_BareLID(t *testing.T) {
	id := ResolveContactIdentity("98765432109876543@lid", "", false)

	assert.Equal(t, "98765432109876543", id.ContactNumber)
	assert.Equal(t, "98765432109876543@lid", id.ReplyAddress)
	assert.Empty(t, id.MediaLookupNumber)
	assert.True(t, id.Degraded)
}

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		name        string
		raw         string
		countryCode string
		want        string
	}{
		{"already prefixed", "5511999998888", "55", "5511999998888"},
		{"missing prefix", "11999998888", "55", "5511999998888"},
		{"strips punctuation", "+55 (11) 99999-8888", "55", "5511999998888"},
		{"no country code configured", "11999998888", "", "11999998888"},
		{"opaque lid digits pass through", "9876543210987654321", "55", "9876543210987654321"},
		{"no digits at all", "abc", "55", "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeNumber(tc.raw, tc.countryCode))
		})
	}
}

func TestIsPhoneNumber(t *testing.T) {
	assert.True(t, IsPhoneNumber("5511999998888"))
	assert.False(t, IsPhoneNumber("9876543210987654321"), "LID digits exceed phone length")
	assert.False(t, IsPhoneNumber("120363042123456789@g.us"))
	assert.False(t, IsPhoneNumber(""))
}

type stubReplyStore struct {
	address string
	err     error
}

func (s stubReplyStore) LastInboundAddress(context.Context, string) (string, error) {
	return s.address, s.err
}

func TestReplyResolver_PhoneFastPath(t *testing.T) {
	r := NewReplyResolver(stubReplyStore{address: "should-not-be-used"})

	got, err := r.Resolve(context.Background(), "t1", "5511999998888")
	require.NoError(t, err)
	assert.Equal(t, "5511999998888", got)
}

func TestReplyResolver_SavedLIDAddress(t *testing.T) {
	r := NewReplyResolver(stubReplyStore{address: "98765432109876543@lid"})

	got, err := r.Resolve(context.Background(), "t1", "98765432109876543")
	require.NoError(t, err)
	assert.Equal(t, "98765432109876543@lid", got)
}

func TestReplyResolver_NoSavedAddress(t *testing.T) {
	r := NewReplyResolver(stubReplyStore{})

	got, err := r.Resolve(context.Background(), "t1", "98765432109876543")
	require.NoError(t, err)
	assert.Empty(t, got, "an unresolvable contact must yield empty, never a guess")
}
