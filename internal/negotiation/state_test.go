package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		from State
		in   Input
		to   State
		err  error
	}{
		{Stable, LocalOffer, HaveLocalOffer, nil},
		{Stable, RemoteOffer, HaveRemoteOffer, nil},
		{HaveLocalOffer, RemoteAnswer, Stable, nil},
		{HaveRemoteOffer, LocalAnswer, Stable, nil},
		{HaveLocalOffer, Rollback, Stable, nil},
		{HaveRemoteOffer, Rollback, Stable, nil},
		{HaveLocalOffer, RemoteOffer, HaveLocalOffer, ErrGlare},
		{HaveRemoteOffer, LocalOffer, HaveRemoteOffer, ErrGlare},
		{Stable, RemoteAnswer, Stable, ErrInvalidTransition},
		{HaveLocalOffer, LocalAnswer, HaveLocalOffer, ErrInvalidTransition},
		{Failed, LocalOffer, Failed, ErrInvalidTransition},
		{Closed, RemoteOffer, Closed, ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.from.String()+"/"+tc.in.String(), func(t *testing.T) {
			got, err := Transition(tc.from, tc.in)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.to, got)
		})
	}
}

func TestStateText(t *testing.T) {
	b, err := HaveRemoteOffer.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "have-remote-offer", string(b))

	var s State
	require.NoError(t, s.UnmarshalText(b))
	assert.Equal(t, HaveRemoteOffer, s)
	assert.Error(t, s.UnmarshalText([]byte("bogus")))

	var r Role
	require.NoError(t, r.UnmarshalText([]byte("answerer")))
	assert.Equal(t, Answerer, r)
	assert.Equal(t, Offerer, r.Opposite())
}
