// Command hirc is the thin terminal client for hircd.
package main

import (
	"fmt"
	"os"

	"github.com/hircd/hircd/internal/client"
	"github.com/hircd/hircd/internal/client/tui"
	"github.com/hircd/hircd/internal/config"
)

func main() {
	socketPath, err := config.SocketPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hirc:", err)
		os.Exit(1)
	}

	sess, err := client.Dial(socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hirc: connect to daemon:", err)
		fmt.Fprintln(os.Stderr, "hirc: is hircd running? try: hircd run")
		os.Exit(1)
	}
	defer sess.Close()

	if err := tui.New(sess).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "hirc:", err)
		os.Exit(1)
	}
}
