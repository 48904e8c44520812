package ble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannels_UniqueUUIDs(t *testing.T) {
	seen := map[string]Channel{}
	for _, ch := range Channels() {
		uuid := ch.UUID()
		require.NotEmpty(t, uuid, ch.String())
		prev, dup := seen[uuid]
		assert.False(t, dup, "%s shares its UUID with %s", ch, prev)
		seen[uuid] = ch
	}
	assert.Len(t, seen, 7)
}

func TestChannel_String(t *testing.T) {
	assert.Equal(t, "LedSet", LedSet.String())
	assert.Equal(t, "CtrlTypeSet", CtrlTypeSet.String())
	assert.Equal(t, "Channel(42)", Channel(42).String())
	assert.Empty(t, Channel(-1).UUID())
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		in      string
		want    Channel
		wantErr bool
	}{
		{in: "LedSet", want: LedSet},
		{in: "brightset", want: BrightSet},
		{in: " AllOff ", want: AllOff},
		{in: "scenesave", want: SceneSave},
		{in: ReadConfig.UUID(), want: ReadConfig},
		{in: strings.ToUpper(SceneSelect.UUID()), want: SceneSelect},
		{in: strings.ReplaceAll(CtrlTypeSet.UUID(), "-", ""), want: CtrlTypeSet},
		{in: "Bogus", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChannel(tt.in)
			if tt.wantErr {
				assert.ErrorContains(t, err, "unknown channel")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequiredChannels(t *testing.T) {
	assert.True(t, isRequired(LedSet))
	assert.True(t, isRequired(BrightSet))
	assert.False(t, isRequired(ReadConfig))
	assert.False(t, isRequired(AllOff))
}
