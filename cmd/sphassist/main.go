package main

import (
	"github.com/dectecx/SPHAssistant/cmd/sphassist/commands"
	"github.com/dectecx/SPHAssistant/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
