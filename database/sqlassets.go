package sqlassets

import _ "embed"

//go:embed schema/control_plane.sql
var ControlPlaneSQL string

//go:embed schema/retention.sql
var RetentionSQL string
