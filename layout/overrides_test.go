package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverrides(t *testing.T) {
	got, err := ParseOverrides(" chargeStrength=-500, alphaDecay = 0.03 ,,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"chargeStrength": "-500", "alphaDecay": "0.03"}, got)

	empty, err := ParseOverrides("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseOverrides("chargeStrength")
	assert.Error(t, err)
	_, err = ParseOverrides("=5")
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	base := DefaultParams()

	got, err := ApplyOverrides(base, map[string]string{"chargeStrength": "-500", "alphaDecay": "0.03"})
	require.NoError(t, err)
	assert.Equal(t, -500.0, got.ChargeStrength)
	assert.Equal(t, 0.03, got.AlphaDecay)
	assert.Equal(t, base.CollideStrength, got.CollideStrength, "other parameters keep their values")
	assert.Equal(t, base.Style, got.Style)
	assert.Equal(t, -900.0, base.ChargeStrength, "input is not modified")

	_, err = ApplyOverrides(base, map[string]string{"gravity": "1"})
	assert.Error(t, err)
	_, err = ApplyOverrides(base, map[string]string{"alpha": "hot"})
	assert.Error(t, err)
	_, err = ApplyOverrides(base, map[string]string{"style": "dark"})
	assert.Error(t, err)

	same, err := ApplyOverrides(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, same)
}

func TestOverrideKeysAreAccepted(t *testing.T) {
	for _, key := range OverrideKeys() {
		_, err := ApplyOverrides(DefaultParams(), map[string]string{key: "0.5"})
		assert.NoError(t, err, key)
	}
}
