package main

import (
	"github.com/tanpawarit/whiteboard-agent/cmd"
	_ "github.com/tanpawarit/whiteboard-agent/pkg/logger/autoload"
)

func main() {
	cmd.Execute()
}
