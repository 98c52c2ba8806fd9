// Package mysql persists the agent exchange log. A JSONL file backed
// repository serves local development and a MySQL repository with embedded
// schema migrations serves deployments.
package mysql
