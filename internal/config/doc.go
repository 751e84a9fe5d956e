// ABOUTME: Package config loads and validates chatdesk configuration
// ABOUTME: YAML files with env var expansion and duration parsing

// Package config provides configuration loading for chatdesk.
//
// Configuration is read from a YAML file. Values in the form ${VAR_NAME}
// are expanded from the environment, which keeps secrets (the Telegram
// token, the OpenAI key) out of the file itself. Interval fields are
// written as Go duration strings ("60s", "5m") and parsed on load.
package config
