package appidentityassets

import _ "embed"

// YAML is the embedded application identity used when no external
// `.fulmen/app.yaml` is found, so a standalone binary still knows its name,
// env prefix, and config directory.
//
//go:embed app.yaml
var YAML []byte
