package main

import (
	"github.com/rfwx/oregonrx/cmd"
	"github.com/rfwx/oregonrx/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
