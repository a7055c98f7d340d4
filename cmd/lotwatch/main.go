package main

import (
	"lotwatch/cmd/lotwatch/commands"
	"lotwatch/lib/util/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
