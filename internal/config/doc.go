// Package config resolves the BlockPay runtime configuration exactly once at
// process start: a JSON file provides the baseline, environment variables
// override individual fields, and defaults fill whatever remains. Request
// handling never reads the environment directly.
package config
