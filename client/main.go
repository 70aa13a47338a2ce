package main

import (
	"github.com/rudransh-shrivastava/chat-it/client/cmd"
)

func main() {
	cmd.Execute()
}
