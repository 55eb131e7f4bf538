// Command ingest_cmorph_daily appends daily CMORPH precipitation to a NetCDF file.
package main

import (
	"os"

	"github.com/couchcryptid/cmorph-ingest/internal/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewDailyCommand()))
}
