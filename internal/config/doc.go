/*
Package config loads client configuration for the rados tooling.

Values come from three sources, lowest precedence first:

	defaults      NewDefault
	YAML file     --config, or rados.yaml in $XDG_CONFIG_HOME/rados or .
	environment   RADOS_<SECTION>_<KEY>, e.g. RADOS_CLUSTER_USER

A missing file is tolerated only when no path was given explicitly.

# File format

	cluster:
	  name: ceph
	  user: client.admin
	  pool: data
	  operation_timeout: 30s
	  shutdown_timeout: 30s

	backend:
	  type: badger          # memory, badger, sqlite or s3
	  workers: 4
	  page_size: 64
	  badger:
	    path: /var/lib/rados

	logging:
	  level: INFO
	  format: text
	  output: stderr

	metrics:
	  enabled: true
	  address: ":9090"
	  path: /metrics

	retry:
	  max_attempts: 5
	  initial_delay: 100ms

Only the backend section named by backend.type is decoded. Decoding errors
and validation failures are reported as *errors.Error with a CONFIG_*
code and the offending field in the "field" context key.

# Wiring

	cfg, err := config.Load(path)
	logger, closeLog, err := cfg.NewLogger()
	backend, err := cfg.OpenBackend(ctx, logger)
	cluster, err := rados.Connect(ctx, cfg.ClientOptions(backend, logger, nil))
*/
package config
