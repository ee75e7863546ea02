package main

import "github.com/ineyio/voicepool/internal/cli"

func main() {
	cli.Execute()
}
