// ----------------------------------------------------------
// Blindutil
// Helpers for blindwalk exports and one-off endpoint probes
// ----------------------------------------------------------

package main

import (
	"github.com/MaderNoob/art-gallery-scanner/pkg/blindutil"
)

func main() {
	blindutil.Run()
}
