// bazaarctl is a command line client for the StarBazaar marketplace,
// mainly useful against a dev server.
package main

func main() {
	Execute()
}
