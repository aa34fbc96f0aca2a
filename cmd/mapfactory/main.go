package main

import "github.com/MeKo-Tech/mapfactory/internal/cmd"

func main() {
	cmd.Execute()
}
