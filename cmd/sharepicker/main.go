package main

import "github.com/bryanchriswhite/SharePicker/cmd/sharepicker/commands"

func main() {
	commands.Execute()
}
