// Command pikostudio runs the DJ studio audio core behind an HTTP control
// surface.
package main

func main() {
	Execute()
}
