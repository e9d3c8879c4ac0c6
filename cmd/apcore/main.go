// Package main is the entry point for apcore.
package main

func main() {
	Execute()
}
