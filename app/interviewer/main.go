// Command interviewer runs the AI-HR interview runner and its control API.
package main

import (
	"log"

	"github.com/Soln1shko/AI-HR/app/interviewer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
