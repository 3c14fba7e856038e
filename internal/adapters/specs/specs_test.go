package specs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const callYAML = `
id: call-1
members:
  - id: alice
    credentials: alice-pass
    on_join: http://hooks.local/join
    on_leave: mqtt://broker.local:1883/leave
    reconnect_timeout: 15s
    publish:
      - id: publish
        p2p: always
        audio:
          policy: required
        video:
          source: display
    play:
      - id: play-bob
        src: local://call-1/bob/publish
  - id: bob
    credentials: bob-pass
    publish:
      - id: publish
        force_relay: true
    play:
      - id: play-alice
        src: local://call-1/alice/publish
`

func TestParse(t *testing.T) {
	spec, err := Parse([]byte(callYAML))
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("call-1"), spec.ID)
	require.Len(t, spec.Members, 2)

	alice := spec.Members[0]
	assert.Equal(t, "mqtt://broker.local:1883/leave", alice.OnLeave)
	assert.Equal(t, 15*time.Second, alice.ReconnectTimeout)
	require.Len(t, alice.Publish, 1)
	assert.Equal(t, domain.PolicyRequired, alice.Publish[0].Audio.Policy)
	assert.Equal(t, domain.PolicyOptional, alice.Publish[0].Video.Policy, "normalized")
	assert.Equal(t, domain.SourceDisplay, alice.Publish[0].Video.Source)
	assert.Equal(t, "local://call-1/bob/publish", alice.Play[0].Src.String())

	assert.True(t, spec.Members[1].Publish[0].ForceRelay)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want error
	}{
		"unknown field":   {yaml: "id: r\nextra: 1\n", want: domain.ErrInvalidSpec},
		"dangling source": {yaml: "id: r\nmembers:\n  - id: a\n    play:\n      - id: p\n        src: local://r/b/pub\n", want: domain.ErrDanglingSource},
		"bad src scheme":  {yaml: "id: r\nmembers:\n  - id: a\n    play:\n      - id: p\n        src: http://r/b/pub\n", want: domain.ErrInvalidSpec},
		"missing id":      {yaml: "members: []\n", want: domain.ErrInvalidSpec},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(callYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("id: lobby\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	specs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, domain.RoomID("lobby"), specs[0].ID)
	assert.Equal(t, domain.RoomID("call-1"), specs[1].ID)

	none, err := LoadDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.yaml"), []byte("id: [\n"), 0o600))
	_, err = LoadDir(dir)
	assert.Error(t, err)
}
