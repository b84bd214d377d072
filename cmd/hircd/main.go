// Command hircd is the multiplexing IRC daemon.
package main

import "github.com/hircd/hircd/cmd"

func main() {
	cmd.Execute()
}
