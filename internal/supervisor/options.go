package supervisor

import (
	"fmt"
	"strconv"
)

type optionKind int

const (
	kindString optionKind = iota
	kindUint
	kindBool
)

// allowedLobbyOptions is the set of lobby settings admins may change on a
// live lobby, with the value kind each expects. Anything else is refused
// so a typo can never flip an unrelated lobby flag.
var allowedLobbyOptions = map[string]optionKind{
	"game_name":        kindString,
	"server_region":    kindUint,
	"game_mode":        kindUint,
	"visibility":       kindUint,
	"pass_key":         kindString,
	"cm_pick":          kindUint,
	"series_type":      kindUint,
	"dota_tv_delay":    kindUint,
	"allow_cheats":     kindBool,
	"fill_with_bots":   kindBool,
	"intro_mode":       kindBool,
	"start_game_setup": kindBool,
	"pause_setting":    kindUint,
	"league_id":        kindUint,
	"leagueid":         kindUint,
	"bot_difficulty":   kindUint,
	"allow_spectating": kindBool,
	"allchat":          kindBool,
}

// sanitizeLobbyOptions filters opts to the whitelist and coerces values to
// the kind each key expects. Unknown keys or uncoercible values fail the
// whole request.
func sanitizeLobbyOptions(opts map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(opts))
	for key, val := range opts {
		kind, ok := allowedLobbyOptions[key]
		if !ok {
			return nil, fmt.Errorf("lobby option %q is not allowed", key)
		}

		switch kind {
		case kindString:
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("lobby option %q expects a string", key)
			}
			out[key] = s
		case kindUint:
			u, err := coerceUint(val)
			if err != nil {
				return nil, fmt.Errorf("lobby option %q: %w", key, err)
			}
			out[key] = u
		case kindBool:
			b, err := coerceBool(val)
			if err != nil {
				return nil, fmt.Errorf("lobby option %q: %w", key, err)
			}
			out[key] = b
		}
	}
	return out, nil
}

func coerceUint(val interface{}) (uint32, error) {
	switch v := val.(type) {
	case uint32:
		return v, nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d", v)
		}
		return uint32(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d", v)
		}
		return uint32(v), nil
	case float64:
		// JSON numbers decode as float64.
		if v < 0 || v != float64(uint32(v)) {
			return 0, fmt.Errorf("value %v is not an unsigned integer", v)
		}
		return uint32(v), nil
	case string:
		u, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("value %q is not an unsigned integer", v)
		}
		return uint32(u), nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", val)
	}
}

func coerceBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("value %q is not a boolean", v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("unsupported value type %T", val)
	}
}
