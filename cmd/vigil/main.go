// Vigil - multi-dimensional risk and safety assessment engine.
// Assess. Decide. Record.
package main

func main() {
	Execute()
}
