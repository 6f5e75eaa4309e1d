package main

import "mnsched/internal/console"

func main() {
	console.Execute()
}
