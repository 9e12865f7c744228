package main

import (
	"log"
	"os"

	"github.com/viant/amgproxy"
)

func main() {
	if err := amgproxy.Run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
