package layout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ParseOverrides reads "key=value" pairs separated by commas, as in
// "chargeStrength=-500,alphaDecay=0.03".
func ParseOverrides(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid layout parameter %q, want key=value", pair)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

// ApplyOverrides returns p with the named numeric parameters replaced. Keys are
// the JSON names of Params fields; unknown keys and non-numeric values fail.
func ApplyOverrides(p Params, overrides map[string]string) (Params, error) {
	if len(overrides) == 0 {
		return p, nil
	}
	if _, ok := overrides["style"]; ok {
		return p, fmt.Errorf("layout parameter 'style' cannot be overridden")
	}

	input := make(map[string]interface{}, len(overrides))
	for k, v := range overrides {
		input[k] = v
	}

	next := p
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &next,
	})
	if err != nil {
		return p, fmt.Errorf("failed to build layout parameter decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return p, fmt.Errorf("invalid layout parameters: %w", err)
	}
	return next, nil
}

// OverrideKeys lists the parameter names accepted by ApplyOverrides.
func OverrideKeys() []string {
	keys := []string{
		"chargeStrength", "chargeDistanceMax", "centerStrength", "collideStrength",
		"genStrength", "xStrength", "coupleStrength", "childStrength",
		"alpha", "alphaMin", "alphaDecay", "velocityDecay", "dragAlpha",
	}
	sort.Strings(keys)
	return keys
}
