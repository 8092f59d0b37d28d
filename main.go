// Command storyteller runs the event reporting demo.
package main

import "github.com/JakeFAU/storyteller/cmd"

func main() {
	cmd.Execute()
}
