// Package config provides configuration parsing and management for the
// index engine and its command line tool.
//
// # Configuration File
//
// Configuration is YAML. Every field is optional; missing values fall back
// to DefaultConfig:
//
//	storage:
//	  dataDir: ./data
//	  file: index.mvrb
//	  pageSize: 4096
//	  compression: snappy
//	  readCacheSize: 16MB
//	tree:
//	  pageCapacity: 64
//	  optimizeThreshold: 5000
//	  entryPoints: 64
//	  entryPointsFactor: 1.0
//	  maxRetries: 10
//	  retryBackoff: 300ms
//	logging:
//	  level: info
//	  format: json
//	watchdog:
//	  enabled: true
//	  maxHeap: 512MB
//
// # Environment Variables
//
// ${VAR} and ${VAR:-default} are substituted before parsing:
//
//	storage:
//	  dataDir: ${MVRB_DATA:-./data}
//
// # Runtime Reload
//
// ConfigManager holds the active configuration. Tree tunables are read
// from it on every optimization pass, so Reload (or a ConfigWatcher that
// calls it) retunes running trees without reopening them.
package config
