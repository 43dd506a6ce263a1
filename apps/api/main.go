// Command api serves the attendance HTTP API.
package main

import (
	"log"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
)

func main() {
	startWithDig()
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
