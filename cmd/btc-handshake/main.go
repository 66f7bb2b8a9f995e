package main

// https://en.bitcoin.it/wiki/Protocol_documentation
// https://developer.bitcoin.org/reference/p2p_networking.html
func main() {
	Execute()
}
