package main

import "github.com/cheahjs/sdwebui-panel/internal/app"

func main() {
	app.Execute()
}
