// Copyright (c) 2025 Taskforge
// Taskforge - collaborative ticket tracker
// This source code is licensed under the MIT license found in the LICENSE file.

// package filestore abstracts the durable binary store that holds ticket
// attachments and user avatars. Two backends exist: a local directory and
// an S3-compatible object store.
package filestore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("file not found")

// Store reads and writes binary objects by key.
type Store interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Config selects and parameterizes a backend.
type Config struct {
	// Backend is "fs" or "minio".
	Backend string `mapstructure:"backend"`
	// Root is the base directory for the fs backend.
	Root string `mapstructure:"root"`

	// Object store settings, minio backend only.
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// New constructs the backend named by the config.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFSStore(cfg.Root)
	case "minio":
		return NewMinioStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown filestore backend: %s", cfg.Backend)
	}
}
