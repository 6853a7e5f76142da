package common

// Version is set at build time via -ldflags "-X github.com/ruteri/keys-api/common.Version=..."
var Version = "dev"

// PackageName is used as the metrics namespace.
const PackageName = "keys_api"
