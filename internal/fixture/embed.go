package fixture

import _ "embed"

//go:embed examples/default.yaml
var defaultFixtureYAML []byte
