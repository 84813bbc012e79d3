package enrichment

// Settings are the job options the portal submits with an enrichment run.
// Every field has an explicit default; server-supplied overrides are applied
// shallowly, field by field, only where actually set.
type Settings struct {
	BatchSize      int    `json:"batch_size"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	NotifyWebhook  bool   `json:"notify_webhook"`
	OutputFormat   string `json:"output_format"`
	SkipInvalid    bool   `json:"skip_invalid"`
}

// SettingsOverride is a partial Settings; nil fields mean "keep the
// default". This is how a server-side config payload with unknown or missing
// options merges without clobbering defaults.
type SettingsOverride struct {
	BatchSize      *int    `json:"batch_size,omitempty"`
	TimeoutSeconds *int    `json:"timeout_seconds,omitempty"`
	NotifyWebhook  *bool   `json:"notify_webhook,omitempty"`
	OutputFormat   *string `json:"output_format,omitempty"`
	SkipInvalid    *bool   `json:"skip_invalid,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		BatchSize:      100,
		TimeoutSeconds: 300,
		NotifyWebhook:  false,
		OutputFormat:   "csv",
		SkipInvalid:    true,
	}
}

func (s Settings) Merge(o *SettingsOverride) Settings {
	if o == nil {
		return s
	}
	if o.BatchSize != nil {
		s.BatchSize = *o.BatchSize
	}
	if o.TimeoutSeconds != nil {
		s.TimeoutSeconds = *o.TimeoutSeconds
	}
	if o.NotifyWebhook != nil {
		s.NotifyWebhook = *o.NotifyWebhook
	}
	if o.OutputFormat != nil {
		s.OutputFormat = *o.OutputFormat
	}
	if o.SkipInvalid != nil {
		s.SkipInvalid = *o.SkipInvalid
	}
	return s
}
