package mpv

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservedPropertiesUnique(t *testing.T) {
	ids := map[int64]bool{}
	names := map[string]bool{}
	for _, p := range ObservedProperties {
		assert.False(t, ids[p.ID], "duplicate id %d", p.ID)
		assert.False(t, names[p.Name], "duplicate name %s", p.Name)
		ids[p.ID], names[p.Name] = true, true

		got, ok := LookupProperty(p.ID)
		require.True(t, ok)
		assert.Equal(t, p, got)
	}
	_, ok := LookupProperty(999)
	assert.False(t, ok)
}

func TestObserveCommand(t *testing.T) {
	p, _ := LookupProperty(7)
	line, err := Encode(p.ObserveCommand(), 1)
	require.NoError(t, err)
	assert.Equal(t, `{"command":["observe_property",7,"time-pos"],"request_id":1}`+"\n", string(line))
}

func TestPropertyDecode(t *testing.T) {
	boolProp := Property{Name: "pause", Kind: KindBool}
	numProp := Property{Name: "volume", Kind: KindNumber}
	strProp := Property{Name: "media-title", Kind: KindString}
	flagProp := Property{Name: "loop-file", Kind: KindFlag}

	cases := []struct {
		name string
		prop Property
		raw  string
		want Value
	}{
		{"null", numProp, "null", Value{}},
		{"missing", numProp, "", Value{}},
		{"bool", boolProp, "true", Value{Valid: true, Bool: true}},
		{"number", numProp, "42.5", Value{Valid: true, Number: 42.5}},
		{"string", strProp, `"Big Buck Bunny"`, Value{Valid: true, String: "Big Buck Bunny"}},
		{"flag inf", flagProp, `"inf"`, Value{Valid: true, Bool: true, String: "inf"}},
		{"flag no", flagProp, `"no"`, Value{Valid: true, String: "no"}},
		{"flag bool", flagProp, "false", Value{Valid: true}},
		{"flag count", flagProp, "3", Value{Valid: true, Bool: true, Number: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.prop.Decode(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPropertyDecodeTypeMismatch(t *testing.T) {
	_, err := Property{Name: "pause", Kind: KindBool}.Decode(json.RawMessage(`"yes"`))
	assert.Error(t, err)
	_, err = Property{Name: "volume", Kind: KindNumber}.Decode(json.RawMessage(`true`))
	assert.Error(t, err)
	_, err = Property{Name: "loop-file", Kind: KindFlag}.Decode(json.RawMessage(`[1]`))
	assert.Error(t, err)
}
