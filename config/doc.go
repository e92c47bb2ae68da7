// Package config provides configuration loading and validation for
// Breadbox.
//
// The package handles YAML configuration files, environment variables,
// and CLI flags with automatic merging and validation using
// go-playground/validator, plus semantic checks (permission groups,
// rate-limit rules, archive schemas) that must fail at startup rather
// than at request time.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (BREADBOX_ prefix)
//  4. CLI flags
//
// # Environment Variables
//
// All config keys map to environment variables with BREADBOX_ prefix:
//   - server.port → BREADBOX_SERVER_PORT
//   - users.type → BREADBOX_USERS_TYPE
//   - advanced.read_only → BREADBOX_ADVANCED_READ_ONLY
package config
