package main

import (
	"os"

	"github.com/DominicWuest/typeprimer/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
