// Command pmemctl creates, inspects and checks persistent object pools and
// drives the key-value engines built on them.
package main

func main() {
	execute()
}
