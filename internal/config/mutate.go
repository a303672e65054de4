package config

import (
	"fmt"
)

// AddKeep adds rel to the keep list.
func AddKeep(cfg *Config, rel string) error {
	if cfg == nil {
		return fmt.Errorf("DOC_CONFIG_KEEP: nil config")
	}
	rel = normalizeRel(rel)
	for _, existing := range cfg.Layout.Keep {
		if existing == rel {
			return fmt.Errorf("DOC_CONFIG_KEEP: %q is already kept", rel)
		}
	}
	next := *cfg
	next.Layout.Keep = append(append([]string(nil), cfg.Layout.Keep...), rel)
	next = Normalize(next)
	if err := Validate(next); err != nil {
		return err
	}
	*cfg = next
	return nil
}

func RemoveKeep(cfg *Config, rel string) error {
	if cfg == nil {
		return fmt.Errorf("DOC_CONFIG_KEEP: nil config")
	}
	rel = normalizeRel(rel)
	for i, k := range cfg.Layout.Keep {
		if k == rel {
			keep := append([]string(nil), cfg.Layout.Keep[:i]...)
			cfg.Layout.Keep = append(keep, cfg.Layout.Keep[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("DOC_CONFIG_KEEP: %q is not kept", rel)
}
