// battctl reads BQ2022 battery id chips, locally or through a battserver.
package main

import (
	"os"

	"github.com/BertoldVdb/battid/battctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
