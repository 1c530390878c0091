// Command coworker runs the Turn Execution Engine's Session Server.
package main

func main() {
	Execute()
}
