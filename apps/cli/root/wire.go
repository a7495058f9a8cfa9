package root

import (
	retentioncmd "github.com/nekotab/control-plane/apps/cli/cmd/retention"
	tenantcmd "github.com/nekotab/control-plane/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(retentioncmd.Command())
	Root().AddCommand(tenantcmd.Command())
}
