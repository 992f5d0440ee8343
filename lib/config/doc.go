// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the Loom runtime configuration.
//
// Configuration comes from a single file named by:
//   - the LOOM_CONFIG environment variable ([Load]), or
//   - an explicit path, usually a --config flag ([LoadFile])
//
// There is no discovery and no environment-variable override of
// individual fields. Files ending in .json or .jsonc are decoded as
// JSON after comment stripping; every other file is YAML. Path fields
// support ${VAR} and ${VAR:-default} expansion, with ${LOOM_CONFIG_DIR}
// naming the directory that holds the config file.
//
// Fields the collector can also supply (working set, cache path) are
// local overrides: a non-empty local value wins over the collector's.
package config
