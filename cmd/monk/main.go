// Command monk downloads MuseumPlus record sets chunk by chunk as
// described in a jobs.dsl file.
package main

import "github.com/mpapi-go/mpapi/cmd/monk/cmd"

func main() {
	cmd.Execute()
}
