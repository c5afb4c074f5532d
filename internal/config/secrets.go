package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Bridge.APIKey)
	redact(&out.Server.APIKey)

	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Execution.RestrictedHours = append([]HourRange(nil), cfg.Execution.RestrictedHours...)
	out.Execution.ClosedWeekdays = append([]string(nil), cfg.Execution.ClosedWeekdays...)
	out.Execution.RetryableCodes = append([]int(nil), cfg.Execution.RetryableCodes...)
	if cfg.Execution.ContractSizes != nil {
		out.Execution.ContractSizes = make(map[string]float64, len(cfg.Execution.ContractSizes))
		for k, v := range cfg.Execution.ContractSizes {
			out.Execution.ContractSizes[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
