package main

import "fielddispatch/internal/app"

func main() {
	app.Run()
}
