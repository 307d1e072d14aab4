package main

import "complyhub/internal/modulectl"

func main() {
	modulectl.Execute()
}
