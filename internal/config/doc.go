// Package config loads the wallet assistant's startup configuration from a
// JSON file and fills in defaults. Secrets never live in the file itself;
// the configuration only names the environment variables that carry them.
package config
