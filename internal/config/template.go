package config

// Template is the sample configuration printed by the config command
const Template = `# platform-snapshot configuration
# Every key can also be set through the environment, e.g.
#   PLATFORM_SNAPSHOT_TARGET_PASSWORD=secret

# Target database connection
target:
  driver: mysql            # mysql, postgres or sqlite
  host: localhost
  port: 3306
  username: platform
  password: ""             # prefer PLATFORM_SNAPSHOT_TARGET_PASSWORD
  database: platform       # file path for sqlite
  # dsn: ""                # overrides the fields above
  timeout: 30s             # bounds connection establishment only

# Where exported snapshots are stored
storage:
  provider: local          # local, s3, gcs or azure
  local:
    base_path: ./backups
    permissions: 0755
  # s3:
  #   bucket: platform-snapshots
  #   region: eu-west-1
  #   prefix: prod/
  # gcs:
  #   bucket: platform-snapshots
  #   credentials_path: /etc/gcs.json
  # azure:
  #   account_name: platform
  #   account_key: ""
  #   container_name: snapshots

snapshot:
  compression: none        # none, gzip, zstd or lz4
  encryption_key_file: ""  # AES-256-GCM when set
  keep: 0                  # prune to the newest N after export (0 keeps all)

restore:
  path: ""                 # default <storage.local.base_path>/restore.json

# Optional YAML catalog replacing the built-in entity kinds
catalog: ""

display:
  color_enabled: true
  theme: dark              # dark, light or high-contrast
  output_format: table     # table, compact, json or yaml
  show_progress: true
  use_icons: true
  table_style: default     # default, rounded or compact
  max_table_width: 120

log:
  verbose: false
  quiet: false
  debug: false
  format: text             # text or json
  file: ""
`
