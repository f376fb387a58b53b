package appidentityassets

import _ "embed"

// YAML is the built-in application identity used when no `.fulmen/app.yaml`
// is found next to the binary.
//
//go:embed app.yaml
var YAML []byte
