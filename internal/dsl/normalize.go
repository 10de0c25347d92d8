package dsl

import "strings"

func normalizeConfig(cfg *Config) {
	cfg.Server.Transport = normalizeKeyword(cfg.Server.Transport)
	cfg.Database.Driver = normalizeKeyword(cfg.Database.Driver)
	cfg.Audit.Lang = normalizeKeyword(cfg.Audit.Lang)
	cfg.Audit.File = strings.TrimSpace(cfg.Audit.File)
	cfg.Database.Target = strings.TrimSpace(cfg.Database.Target)
	for i := range cfg.Commands {
		cfg.Commands[i].Name = strings.TrimSpace(cfg.Commands[i].Name)
	}
}

func normalizeKeyword(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
