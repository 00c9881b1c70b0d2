package config

// Normalize fills unset fields with their defaults. It MUST be called only after
// Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Serial.Device == "" {
		cfg.Serial.Device = DefaultDevice
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}

	// serial framing defaults; Validate has already rejected bad values
	if opts, err := cfg.Serial.PortOptions.Normalize(); err == nil {
		cfg.Serial.PortOptions = opts
	}
}
