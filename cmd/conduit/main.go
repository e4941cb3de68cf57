// Command conduit is the single binary: a terminal UI multiplexing
// long-lived coding-agent subprocess sessions across git workspaces.
package main

func main() {
	Execute()
}
