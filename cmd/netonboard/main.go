// Command netonboard onboards network devices into an inventory store.
package main

func main() {
	Execute()
}
