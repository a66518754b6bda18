// Command blinkwatch watches the camera for open eyes and fades the screen
// when they stay open too long.
package main

func main() {
	Execute()
}
