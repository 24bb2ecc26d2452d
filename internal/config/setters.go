package config

import "github.com/oszuidwest/zwfm-noisewatch/internal/types"

// update applies a mutation under the lock, validates the result, and
// persists it. The previous values are restored if validation fails.
func (c *Config) update(mutate func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := struct {
		system        SystemConfig
		web           WebConfig
		audio         AudioConfig
		alarm         AlarmConfig
		notifications NotificationsConfig
		clips         ClipsConfig
	}{c.System, c.Web, c.Audio, c.Alarm, c.Notifications, c.Clips}

	mutate()

	if err := c.validate(); err != nil {
		c.System = prev.system
		c.Web = prev.web
		c.Audio = prev.audio
		c.Alarm = prev.alarm
		c.Notifications = prev.notifications
		c.Clips = prev.clips
		return err
	}

	return c.saveLocked()
}

// SetAudioInput updates the capture device and persists the config.
func (c *Config) SetAudioInput(input string) error {
	return c.update(func() { c.Audio.Input = input })
}

// SetAlarm updates the alarm threshold and cooldown and persists the config.
func (c *Config) SetAlarm(threshold, cooldownSeconds float64) error {
	return c.update(func() {
		c.Alarm.Threshold = threshold
		c.Alarm.CooldownSeconds = cooldownSeconds
	})
}

// SetWebhookURL updates the webhook URL and persists the config.
func (c *Config) SetWebhookURL(url string) error {
	return c.update(func() { c.Notifications.Webhook.URL = url })
}

// SetGraphConfig updates the Microsoft Graph email settings and persists
// the config.
func (c *Config) SetGraphConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	return c.update(func() {
		c.Notifications.Email = types.GraphConfig{
			TenantID:     tenantID,
			ClientID:     clientID,
			ClientSecret: clientSecret,
			FromAddress:  fromAddress,
			Recipients:   recipients,
		}
	})
}

// SetClips updates the clip capture settings and persists the config.
func (c *Config) SetClips(enabled bool, directory string, retentionDays int) error {
	return c.update(func() {
		c.Clips.Enabled = enabled
		c.Clips.Directory = directory
		c.Clips.RetentionDays = retentionDays
	})
}

// SetClipsS3 updates the clip upload target and persists the config.
func (c *Config) SetClipsS3(endpoint, bucket, accessKeyID, secretAccessKey, prefix string) error {
	return c.update(func() {
		c.Clips.S3 = types.ClipS3Config{
			Endpoint:        endpoint,
			Bucket:          bucket,
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			Prefix:          prefix,
		}
	})
}
