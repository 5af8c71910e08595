package main

import (
	"math/rand"
	"time"

	"github.com/mtpsync/mtpsync/cmd"
	"github.com/mtpsync/mtpsync/cmd/util"
)

func main() {
	// By default, the random number generator is seeded to 1, so the retry
	// jitter isn't actually different between runs unless we explicitly seed
	// it.
	rand.Seed(time.Now().UnixNano())

	defer util.HandlePanic()
	cmd.Execute()
}
