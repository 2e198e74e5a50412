// Package confloader loads layered configuration with koanf.
//
// Layers, lowest priority first: defaults, the YAML file, environment
// variables, then overrides from command-line flags. Environment keys are
// SECTION_KEY under a prefix: MM_API_BASE_URL maps to api.base_url. Only
// the first underscore after the prefix becomes a dot.
//
// Watcher reports settled writes to a single config file so long-running
// commands can pick up edits.
package confloader
