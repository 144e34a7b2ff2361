// ----------------------------------------------------------
// Blindwalk
// Maps the directory tree behind a search endpoint that only
// answers "something matched" or "nothing matched"
// ----------------------------------------------------------

package main

import (
	"github.com/MaderNoob/art-gallery-scanner/pkg/blindwalk"
)

func main() {
	blindwalk.Run()
}
