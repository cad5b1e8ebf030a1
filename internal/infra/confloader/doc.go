// Package confloader loads configuration into typed structs with koanf and
// watches the configuration file with fsnotify.
//
// Sources, highest priority first:
//
//  1. Overrides set with WithOverrides (command-line flags)
//  2. Environment variables (CLINVAULT_SECTION__KEY)
//  3. The YAML file
//  4. Values already present in the target struct
//
// A double underscore separates nesting levels in environment variable
// names so that keys containing underscores survive:
// CLINVAULT_STORAGE__CACHE__TTL=10m sets storage.cache.ttl.
package confloader
