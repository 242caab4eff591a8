// Command ssedemo serves an event stream fed by the console, a random number
// producer and HTTP publishers, plus a presence stream of subscriber counts.
package main

import (
	"github.com/nimburion/ssebroadcast/pkg/app"
	"github.com/nimburion/ssebroadcast/pkg/cli"
)

func main() {
	cli.Execute(cli.NewServiceCommand(cli.ServiceCommandOptions{
		Name:        "ssedemo",
		Description: "Server-sent events broadcaster demo",
		RunServer:   app.Run,
	}))
}
